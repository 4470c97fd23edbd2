package conf

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"gopkg.in/ini.v1"
)

var ConfigPath string

type CommandLineArgs struct {
	ConfigPath string
	Initialize bool
}

/**
[kernel]
data_dir = /var/lib/xkernel
[filesys]
image    = fs.img
[vm]
image    = swap.img
*/
type Cfg struct {
	Raw     *ini.File
	DataDir string

	LogError string
	LogInfos string
	LogLevel string

	// filesys
	FilesysImage   string
	FilesysSectors uint32
	// write-behind 周期
	WriteBehindPeriod         string `default:"300ms"`
	WriteBehindPeriodDuration time.Duration

	// vm
	SwapImage   string
	SwapSectors uint32
	UserPages   int
	StackLimit  int64
}

func NewCfg() *Cfg {
	return &Cfg{
		Raw:                       ini.Empty(),
		DataDir:                   "data",
		LogLevel:                  "info",
		FilesysImage:              "fs.img",
		FilesysSectors:            20160,
		WriteBehindPeriod:         "300ms",
		WriteBehindPeriodDuration: 300 * time.Millisecond,
		SwapImage:                 "swap.img",
		SwapSectors:               8192,
		UserPages:                 256,
		StackLimit:                8 * 1024 * 1024,
	}
}

func (cfg *Cfg) Load(args *CommandLineArgs) *Cfg {
	setHomePath(args)
	iniFile, err := cfg.loadConfiguration(args)
	if err != nil {
		fmt.Println("加载配置文件时有异常", err)
		os.Exit(1)
	}
	cfg.Raw = iniFile

	cfg.parseKernelCfg(cfg.Raw.Section("kernel"))
	cfg.parseFilesysCfg(cfg.Raw.Section("filesys"))
	cfg.parseVMCfg(cfg.Raw.Section("vm"))
	return cfg
}

func setHomePath(args *CommandLineArgs) {
	if args.ConfigPath != "" {
		ConfigPath = args.ConfigPath
		return
	}
	ConfigPath, _ = filepath.Abs(".")
}

func (cfg *Cfg) loadConfiguration(args *CommandLineArgs) (*ini.File, error) {
	if args.ConfigPath == "" {
		return ini.Empty(), nil
	}
	exists, err := pathExists(args.ConfigPath)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("配置文件不存在: %s", args.ConfigPath)
	}
	return ini.Load(args.ConfigPath)
}

func pathExists(p string) (bool, error) {
	_, err := os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (cfg *Cfg) parseKernelCfg(section *ini.Section) *Cfg {
	cfg.DataDir = section.Key("data_dir").MustString(cfg.DataDir)
	cfg.LogError = section.Key("log_error").MustString(cfg.LogError)
	cfg.LogInfos = section.Key("log_info").MustString(cfg.LogInfos)
	cfg.LogLevel = section.Key("log_level").MustString(cfg.LogLevel)
	return cfg
}

func (cfg *Cfg) parseFilesysCfg(section *ini.Section) *Cfg {
	var err error
	cfg.FilesysImage = section.Key("image").MustString(cfg.FilesysImage)
	cfg.FilesysSectors = uint32(section.Key("sectors").MustUint(uint(cfg.FilesysSectors)))
	cfg.WriteBehindPeriod = section.Key("write_behind_period").MustString(cfg.WriteBehindPeriod)
	cfg.WriteBehindPeriodDuration, err = time.ParseDuration(cfg.WriteBehindPeriod)
	if err != nil {
		fmt.Println(fmt.Sprintf("time.ParseDuration(WriteBehindPeriod{%#v}) = error{%v}", cfg.WriteBehindPeriod, err))
		os.Exit(1)
	}
	return cfg
}

func (cfg *Cfg) parseVMCfg(section *ini.Section) *Cfg {
	cfg.SwapImage = section.Key("image").MustString(cfg.SwapImage)
	cfg.SwapSectors = uint32(section.Key("sectors").MustUint(uint(cfg.SwapSectors)))
	cfg.UserPages = section.Key("user_pages").MustInt(cfg.UserPages)
	cfg.StackLimit = section.Key("stack_limit").MustInt64(cfg.StackLimit)
	return cfg
}

// FilesysPath returns the filesystem image location under the data dir.
func (cfg *Cfg) FilesysPath() string {
	return path.Join(cfg.DataDir, cfg.FilesysImage)
}

// SwapPath returns the swap image location under the data dir.
func (cfg *Cfg) SwapPath() string {
	return path.Join(cfg.DataDir, cfg.SwapImage)
}
