package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AlexStocks/log4go"
	"github.com/zhukovaskychina/xkernel-server/kernel/conf"
	"github.com/zhukovaskychina/xkernel-server/kernel/device"
	"github.com/zhukovaskychina/xkernel-server/kernel/filesys"
	"github.com/zhukovaskychina/xkernel-server/kernel/mem"
	"github.com/zhukovaskychina/xkernel-server/kernel/vm"
	"github.com/zhukovaskychina/xkernel-server/logger"
)

const help = `
******************************************************************************************
 __  ___ _  _____ ____  _   _ _____ _
 \ \/ / |/ / ____|  _ \| \ | | ____| |
  \  /| ' /|  _| | |_) |  \| |  _| | |
  /  \| . \| |___|  _ <| |\  | |___| |___
 /_/\_\_|\_\_____|_| \_\_| \_|_____|_____|
******************************************************************************************
*帮助:
*1. -- help
*2. -- configPath   指定kernel.ini配置文件
*3. -- initialize   格式化文件系统镜像
******************************************************************************************
`

func main() {
	fmt.Println(help)

	var configPath string
	var initialize bool
	flag.StringVar(&configPath, "configPath", "", "配置文件路径")
	flag.BoolVar(&initialize, "initialize", false, "格式化文件系统")
	flag.Parse()

	args := &conf.CommandLineArgs{
		ConfigPath: configPath,
		Initialize: initialize,
	}
	config := conf.NewCfg().Load(args)

	logConfig := logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}
	if err := logger.InitLogger(logConfig); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		logger.Fatalf("create data dir %s: %v", config.DataDir, err)
	}

	log4go.Info("opening filesystem image %s (%d sectors)", config.FilesysPath(), config.FilesysSectors)
	fsDev, err := device.NewBlockFile(config.DataDir, config.FilesysImage, config.FilesysSectors)
	if err != nil {
		logger.Fatalf("open filesystem device: %v", err)
	}
	device.Register(device.RoleFilesys, fsDev)

	log4go.Info("opening swap image %s (%d sectors)", config.SwapPath(), config.SwapSectors)
	swapDev, err := device.NewBlockFile(config.DataDir, config.SwapImage, config.SwapSectors)
	if err != nil {
		logger.Fatalf("open swap device: %v", err)
	}
	device.Register(device.RoleSwap, swapDev)

	if initialize {
		log4go.Info("formatting filesystem image")
		if err := filesys.Format(fsDev); err != nil {
			logger.Fatalf("format: %v", err)
		}
	}

	fs, err := filesys.Mount(fsDev, config.WriteBehindPeriodDuration)
	if err != nil {
		logger.Fatalf("mount: %v", err)
	}

	pool := mem.NewPool(config.UserPages)
	vmsys := vm.NewVM(pool, swapDev, config.StackLimit)
	log4go.Info("virtual memory online: %d frames, stack limit %d bytes", vmsys.Frames.Len(), config.StackLimit)

	logger.Info("xkernel storage core is up")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down, flushing cache")
	if err := fs.Close(); err != nil {
		logger.Errorf("flush on shutdown: %v", err)
	}
	if err := fsDev.Close(); err != nil {
		logger.Errorf("close filesystem device: %v", err)
	}
	if err := swapDev.Close(); err != nil {
		logger.Errorf("close swap device: %v", err)
	}
	logger.Infof("cache hit ratio %.2f, device reads %d writes %d",
		fs.Cache.HitRatio(), fsDev.Reads(), fsDev.Writes())
}
