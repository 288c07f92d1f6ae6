package input

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"git.fiblab.net/general/common/v2/mongoutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/scenario-player/parser"
	"github.com/tsinghua-fib-lab/scenario-player/utils/config"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v2"
)

// ErrNoInput 配置中没有任何场景来源
var ErrNoInput = errors.New("input: neither files nor scenario collection configured")

// Input 输入数据
// 功能：存储一次回放所需的原始场景文档与外部校验结论
// 说明：文档内容不在此处解析，交给parser.Worker在后台处理
type Input struct {
	Files      []parser.File
	Validation map[string]parser.ValidationResult
}

// document MongoDB中一条场景文档记录
type document struct {
	Name    string `bson:"name"`
	Content string `bson:"content"`
}

// Init 加载输入数据
// 功能：根据配置读取场景文档与校验结论
// 参数：ctx-上下文，cfg-配置对象，cacheDir-缓存目录（为空时禁用缓存）
// 返回：输入数据，错误信息
// 算法说明：
// 1. 文件加载：配置了Files时直接从文件系统读取，文件名取basename
// 2. 数据库加载：否则从MongoDB集合读取{name, content}记录，按name排序；
// 启用缓存时优先读取缓存目录，下载后写回缓存
// 3. 校验结论：配置了Validation时按YAML（兼容JSON）读取{filename: {errors, warnings}}
func Init(ctx context.Context, cfg config.Config, cacheDir string) (*Input, error) {
	useCache := preCheckCache(cacheDir)
	res := &Input{}
	var err error
	switch {
	case len(cfg.Input.Files) > 0:
		res.Files, err = readFiles(cfg.Input.Files)
	case cfg.Input.Scenario != nil:
		path := *cfg.Input.Scenario
		var dir string
		if useCache {
			dir = filepath.Join(cacheDir, path.GetCachePath())
			if files, ok := readCache(dir); ok {
				res.Files = files
				break
			}
		}
		if path.OnlyCache {
			return nil, fmt.Errorf("input: no cache for %s.%s", path.DB, path.Col)
		}
		if cfg.Input.URI == "" {
			return nil, fmt.Errorf("input: scenario collection %s.%s configured without uri", path.DB, path.Col)
		}
		client := mongoutil.NewClient(cfg.Input.URI)
		defer client.Disconnect(context.Background())
		res.Files, err = download(ctx, client, path)
		if err == nil && dir != "" {
			writeCache(dir, res.Files)
		}
	default:
		return nil, ErrNoInput
	}
	if err != nil {
		return nil, err
	}

	if cfg.Input.Validation != "" {
		res.Validation, err = LoadValidation(cfg.Input.Validation)
		if err != nil {
			return nil, err
		}
	}
	log.Infof("loaded %d scenario files (%d bytes)", len(res.Files), lo.SumBy(res.Files, func(f parser.File) int { return len(f.Data) }))
	return res, nil
}

func readFiles(paths []string) ([]parser.File, error) {
	files := make([]parser.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("input: %w", err)
		}
		files = append(files, parser.File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// download 从MongoDB下载场景文档
func download(ctx context.Context, client *mongo.Client, path config.InputPath) ([]parser.File, error) {
	log.Infof("start fetching from %s.%s", path.DB, path.Col)
	coll := mongoutil.GetMongoColl(client, path)
	cur, err := coll.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("input: find %s.%s: %w", path.DB, path.Col, err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("input: decode %s.%s: %w", path.DB, path.Col, err)
	}
	log.Infof("finish fetching %d documents from %s.%s", len(docs), path.DB, path.Col)
	return lo.FilterMap(docs, func(d document, _ int) (parser.File, bool) {
		if d.Name == "" {
			log.Warnf("ignore document without name in %s.%s", path.DB, path.Col)
			return parser.File{}, false
		}
		return parser.File{Name: d.Name, Data: []byte(d.Content)}, true
	}), nil
}

// LoadValidation 读取校验结论文件
func LoadValidation(path string) (map[string]parser.ValidationResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("input: %w", err)
	}
	var res map[string]parser.ValidationResult
	if err := yaml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("input: validation %s: %w", path, err)
	}
	return res, nil
}
