package main

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/acbcsuite/acbc/config"
	"github.com/acbcsuite/acbc/log"
)

var cfg *config.Config

const appVersion = "0.1.0"

func version() string {
	return appVersion
}

func main() {
	if runtime.GOOS == "windows" && winServiceMain != nil {
		isService, err := winServiceMain()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if isService {
			os.Exit(0)
		}
	}

	// Work around defer not working after os.Exit().
	if err := acbcMain(nil); err != nil {
		os.Exit(1)
	}
}

// winServiceMain is only invoked on Windows, to detect when acbc is running
// as a service and react accordingly. It stays nil on every other platform.
var winServiceMain func() (bool, error)

// acbcMain loads configuration, starts logging, constructs the server, and
// blocks until an interrupt is received.
func acbcMain(serverChan chan<- *server) error {
	loadedCfg, _, err := config.LoadConfig()
	if err != nil {
		return err
	}
	cfg = loadedCfg

	log.InitLogRotator(cfg.LogDir + "/acbc.log")
	log.SetLogLevels(cfg.DebugLevel)
	defer func() {
		if log.LogRotator != nil {
			log.LogRotator.Close()
		}
	}()

	interrupt := interruptListener()
	defer log.AcbcLog.Info("Shutdown complete")

	log.AcbcLog.Infof("Version %s", version())

	srv, err := newServer(cfg)
	if err != nil {
		log.AcbcLog.Errorf("unable to start server: %v", err)
		return err
	}
	defer func() {
		log.AcbcLog.Infof("gracefully shutting down the server...")
		srv.Stop()
		srv.WaitForShutdown()
		log.SrvrLog.Infof("server shutdown complete")
	}()
	srv.Start()
	if serverChan != nil {
		serverChan <- srv
	}

	<-interrupt
	return nil
}

// interruptListener returns a channel that is closed when an interrupt
// signal (SIGINT or SIGTERM) is received.  Each call registers a new
// listener and returns a new channel.
func interruptListener() <-chan struct{} {
	c := make(chan struct{})
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		sig := <-sigChan
		log.AcbcLog.Infof("received signal (%s), shutting down...", sig)
		close(c)
	}()
	return c
}
