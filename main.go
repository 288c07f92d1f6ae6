package main

import (
	"context"
	"encoding/base64"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"git.fiblab.net/sim/syncer/v3"
	easy "git.fiblab.net/utils/logrus-easy-formatter"
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/scenario-player/clock"
	"github.com/tsinghua-fib-lab/scenario-player/parser"
	"github.com/tsinghua-fib-lab/scenario-player/task"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
	"github.com/tsinghua-fib-lab/scenario-player/utils/input"
)

var (
	// 分布式模式syncer地址，如果设置为空则激活独立部署模式
	syncerAddr = flag.String("syncer", "", "syncer address (empty means standalone mode), e.g. http://localhost:53001")
	// 回放任务名，用于日志区分
	job = flag.String("job", "job0", "the name of the whole playback task")
	// 本程序监听的RPC地址
	grpcAddr = flag.String("listen", ":51102", "RPC listening address")
	// 配置文件路径
	configPath = flag.String("config", "", "config file path")
	// 配置文件Base64编码后的数据
	configData = flag.String("config-data", "", "config file base64 encoded data")
	// 场景文档的缓存地址，设置为空则禁用缓存功能
	// 缓存：将MongoDB中的场景文档根据数据库db和col保存到本地文件系统，并总是先试图从文件系统中加载
	cacheDir = flag.String("cache", "data/", "input cache dir path (empty means disable cache)")
	// 演示模式：不读取输入，生成随机场景
	demoVehicles = flag.Int("demo", 0, "generate a synthetic scenario with N vehicles instead of reading input (0 means disable)")
	demoEvents   = flag.Int("demo.events", 20, "number of events in the synthetic scenario")
	demoSeed     = flag.Uint64("demo.seed", 0, "random seed of the synthetic scenario")

	// log
	logLevels = map[string]logrus.Level{
		"trace":    logrus.TraceLevel,
		"debug":    logrus.DebugLevel,
		"info":     logrus.InfoLevel,
		"warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"critical": logrus.FatalLevel,
		"off":      logrus.PanicLevel,
	}
	logLevel = flag.String("log.level", "info", "日志级别（可选项：trace debug info warn error critical off）")

	log = logrus.WithField("module", "player")
)

func main() {
	flag.Parse()
	logrus.SetFormatter(&easy.Formatter{
		TimestampFormat: "2006-01-02 15:04:05.0000",
		LogFormat:       "[%module%] [%time%] [%lvl%] %msg%\n",
	})
	// log: 运行时才修改
	if level, ok := logLevels[*logLevel]; ok {
		logrus.SetLevel(level)
	} else {
		log.Panicf("log.level must be one of %v", logLevels)
	}
	// 获取配置
	var file []byte
	var err error
	if *configPath != "" {
		file, err = os.ReadFile(*configPath)
		if err != nil {
			log.Panicf("config file load err: %v", err)
		}
	} else if *configData != "" {
		file, err = base64.StdEncoding.DecodeString(*configData)
		if err != nil {
			log.Panicf("config data load err: %v", err)
		}
	} else if *demoVehicles <= 0 {
		log.Panic("config file or config data must be specified")
	}
	c := config.Default()
	if file != nil {
		if c, err = config.Load(file); err != nil {
			log.Panicf("config file load err: %v", err)
		}
	}
	log.Infof("job %s: %+v", *job, c)

	// 读取并解析场景
	loader := parser.NewLoader(parser.NewWorker(c.Parser))
	defer loader.Close()
	files, validation, err := loadInput(c)
	if err != nil {
		log.Panicf("input err: %v", err)
	}
	loader.Load(context.Background(), files, validation)
	loader.Wait()
	if err := loader.Err(); err != nil {
		log.Panicf("parse err: %v", err)
	}
	res := loader.Data()
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	for _, issue := range res.ValidationIssues {
		log.Warnf("validation %s %s: %s", issue.Severity, issue.File, issue.Message)
	}

	wall := clock.RealClock{}
	interval := time.Duration(c.Control.Playback.FrameInterval * float64(time.Second))
	t, err := task.NewContext(c, res, wall, clock.NewTimerScheduler(wall, interval))
	if err != nil {
		log.Panicf("create task err: %v", err)
	}
	// 之后的重新加载（SIGHUP）直接替换回放中的场景
	loader.OnLoad(func(res *parser.Result, err error) {
		if err != nil {
			log.Errorf("reload err: %v", err)
			return
		}
		if err := t.Load(res); err != nil {
			log.Errorf("reload err: %v", err)
		}
	})

	// sidecar协程，用于提供RPC服务
	sidecar := syncer.NewSidecar(task.SelfName, *grpcAddr, *syncerAddr)
	t.Register(sidecar)
	served := make(chan struct{})
	go func() {
		if err := sidecar.Serve(); err != nil {
			log.Panicf("failed to serve: %v", err)
		}
		close(served)
	}()
	addr := *grpcAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	if err := task.WaitForServerReady("http://"+addr, 50, 100*time.Millisecond); err != nil {
		log.Panicf("%v", err)
	}
	log.Infof("serving %s at %s", task.PlaybackServiceName, *grpcAddr)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig == syscall.SIGHUP {
			log.Info("reload scenario")
			files, validation, err := loadInput(c)
			if err != nil {
				log.Errorf("reload input err: %v", err)
				continue
			}
			loader.Load(context.Background(), files, validation)
			continue
		}
		log.Infof("receive %v, shutting down", sig)
		break
	}
	t.Dispose()
	sidecar.Close()
	// wait for graceful stop
	<-served
	log.Infof("player complete")
}

// loadInput 读取场景文档：演示模式下生成随机场景，否则按配置读取文件或MongoDB
func loadInput(c config.Config) ([]parser.File, map[string]parser.ValidationResult, error) {
	if *demoVehicles > 0 {
		f, err := parser.Synthetic(*demoSeed, *demoVehicles, *demoEvents)
		if err != nil {
			return nil, nil, err
		}
		return []parser.File{f}, nil, nil
	}
	in, err := input.Init(context.Background(), c, *cacheDir)
	if err != nil {
		return nil, nil, err
	}
	return in.Files, in.Validation, nil
}
