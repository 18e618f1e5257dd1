// Package config loads the node's on-disk/command-line configuration using
// the same go-flags convention the rest of the btcsuite lineage uses.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
)

const (
	defaultConfigFilename = "acbc.conf"
	defaultLogLevel       = "info"
)

var (
	defaultHomeDir    = AppDataDir("acbc", false)
	defaultConfigFile = filepath.Join(defaultHomeDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultHomeDir, "logs")
)

// Config defines the top-level configuration options this node accepts,
// either from a config file or the command line, following the tagged-
// struct convention go-flags expects.
type Config struct {
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`
	DataDir    string `short:"b" long:"datadir" description:"Directory to store data"`
	LogDir     string `long:"logdir" description:"Directory to log output"`
	DebugLevel string `short:"d" long:"debuglevel" description:"Logging level"`

	Listeners []string `long:"listen" description:"Add an interface/port to listen for connections"`
	MaxPeers  int      `long:"maxpeers" description:"Max number of inbound and outbound peers"`
	TestNet3  bool     `long:"testnet" description:"Use the test network"`
	SimNet    bool     `long:"simnet" description:"Use the simulation test network"`

	// Transaction propagation tuning, mirroring the §6 tuning table.
	MaxPeerTxAnnouncements int           `long:"maxpeertxannouncements" description:"Maximum unfetched transaction announcements remembered per peer"`
	MaxPeerTxInFlight      int           `long:"maxpeertxinflight" description:"Maximum outstanding GETDATA requests per peer"`
	InboundPeerTxDelay     time.Duration `long:"inboundpeertxdelay" description:"Extra delay before requesting a transaction announced by an inbound peer"`
	GetDataTxInterval      time.Duration `long:"getdatatxinterval" description:"Timeout before a transaction request is considered expired"`
	TxAnnouncementLifetime time.Duration `long:"txannouncementlifetime" description:"Maximum age of an unfetched transaction announcement"`

	RebroadcastMinTxAge   time.Duration `long:"rebroadcastmintxage" description:"Minimum mempool age before a transaction is eligible for rebroadcast"`
	MinReattemptInterval  time.Duration `long:"minreattemptinterval" description:"Minimum time between rebroadcasts of the same transaction"`
	MaxRebroadcastCount   uint32        `long:"maxrebroadcastcount" description:"Maximum number of times a transaction is ever rebroadcast"`
	TxRebroadcastInterval time.Duration `long:"txrebroadcastinterval" description:"Average interval between rebroadcast passes"`
}

// LoadConfig reads the configuration file (if any) and command-line flags,
// applying defaults for anything unset, and returns the resulting Config
// along with go-flags' unparsed remaining arguments.
func LoadConfig() (*Config, []string, error) {
	cfg := Config{
		ConfigFile: defaultConfigFile,
		DataDir:    defaultHomeDir,
		LogDir:     defaultLogDir,
		DebugLevel: defaultLogLevel,
		MaxPeers:   125,

		MaxPeerTxAnnouncements: 5000,
		MaxPeerTxInFlight:      100,
		InboundPeerTxDelay:     2 * time.Second,
		GetDataTxInterval:      60 * time.Second,
		TxAnnouncementLifetime: 20 * time.Minute,

		RebroadcastMinTxAge:   30 * time.Minute,
		MinReattemptInterval:  4 * time.Hour,
		MaxRebroadcastCount:   6,
		TxRebroadcastInterval: time.Hour,
	}

	preParser := flags.NewParser(&cfg, flags.HelpFlag|flags.PassDoubleDash)
	_, err := preParser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return nil, nil, err
		}
		return nil, nil, errors.Wrap(err, "parsing command line arguments")
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, nil, errors.Wrap(err, "creating data directory")
	}

	parser := flags.NewParser(&cfg, flags.Default)
	if FileExists(cfg.ConfigFile) {
		if err := flags.NewIniParser(parser).ParseFile(cfg.ConfigFile); err != nil {
			return nil, nil, errors.Wrap(err, "parsing configuration file")
		}
	}
	remaining, err := parser.Parse()
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing command line arguments")
	}

	return &cfg, remaining, nil
}

// FileExists reports whether the named file or directory exists.
func FileExists(name string) bool {
	if name == "" {
		return false
	}
	_, err := os.Stat(name)
	return err == nil
}

// AppDataDir returns "."+appName under the user's home directory on every
// OS, or "." when appName is empty or the home directory is unknown.  The
// roaming flag is not used.
func AppDataDir(appName string, roaming bool) string {
	if appName == "" || appName == "." {
		return "."
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "."
	}
	return filepath.Join(home, "."+appName)
}
