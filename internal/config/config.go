// 包 config：YAML 运行配置的加载、环境变量覆盖、默认值与校验
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"geoenrich/internal/spatial"

	"gopkg.in/yaml.v3"
)

// ErrInvalid：配置不可用；具体字段见包装信息
var ErrInvalid = errors.New("invalid configuration")

const (
	ModeShapefile = "shapefile"
	ModeDatabase  = "database"
)

type Config struct {
	InputFile      string    `yaml:"input_file"`
	OutputFile     string    `yaml:"output_file"`
	Delimiter      string    `yaml:"delimiter"`
	Header         string    `yaml:"header"`
	ColumnX        int       `yaml:"column_x"`
	ColumnY        int       `yaml:"column_y"`
	CoordinateType int       `yaml:"coordinate_type"`
	Workers        int       `yaml:"workers"`
	MetricsAddr    string    `yaml:"metrics_addr"`
	Intersect      Intersect `yaml:"intersect"`
	Cache          Cache     `yaml:"cache"`
}

type Intersect struct {
	Type       string     `yaml:"type"`
	Data       string     `yaml:"data"`
	Shapefile  Shapefile  `yaml:"shapefile"`
	Database   Database   `yaml:"database"`
	Parameters Parameters `yaml:"parameters"`
}

// Shapefile：图层文件（.shp / .geojson）；Cache 缺省为 true，即构建 R-tree
type Shapefile struct {
	Path  string `yaml:"path"`
	Cache *bool  `yaml:"cache"`
}

type Database struct {
	URL            string        `yaml:"url"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	GeometryColumn string        `yaml:"geometry_column"`
	EnsureIndex    bool          `yaml:"ensure_index"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`
}

// Parameters：扩展搜索参数；零值回落到默认值
type Parameters struct {
	Increase    float64 `yaml:"increase"`
	Growth      float64 `yaml:"growth"`
	Attempts    int     `yaml:"attempts"`
	Candidates  int     `yaml:"candidates"`
	MaxDistance float64 `yaml:"max_distance"`
	ProbeLimit  *int    `yaml:"probe_limit"`
}

type Cache struct {
	LRUSize       int           `yaml:"lru_size"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
}

// 文档注释：读取并校验配置文件
// 背景：未知字段直接拒绝，避免拼写错误被静默忽略；.env 由入口在此之前加载。
// 约束：覆盖顺序为 文件 → GEOENRICH_* 环境变量 → 默认值 → 校验。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalid, path, err)
	}
	return Parse(b, os.LookupEnv)
}

// Parse：从内存解析，lookup 用于注入环境变量
func Parse(b []byte, lookup func(string) (string, bool)) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	var c Config
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %v", ErrInvalid, err)
	}
	if err := c.applyEnv(lookup); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		return nil
	}
	if v, ok := lookup("GEOENRICH_DB_USER"); ok && v != "" {
		c.Intersect.Database.Username = v
	}
	if v, ok := lookup("GEOENRICH_DB_PASSWORD"); ok && v != "" {
		c.Intersect.Database.Password = v
	}
	if v, ok := lookup("GEOENRICH_REDIS_ADDR"); ok && v != "" {
		c.Cache.RedisAddr = v
	}
	if v, ok := lookup("GEOENRICH_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: GEOENRICH_WORKERS: %v", ErrInvalid, err)
		}
		c.Workers = n
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := spatial.DefaultParameters()
	p := &c.Intersect.Parameters
	if p.Increase == 0 {
		p.Increase = def.InitialStep
	}
	if p.Growth == 0 {
		p.Growth = p.Increase
	}
	if p.Attempts == 0 {
		p.Attempts = def.MaxAttempts
	}
	if p.Candidates == 0 {
		p.Candidates = def.TargetCandidates
	}
	if p.MaxDistance == 0 {
		p.MaxDistance = def.MaxSearchDistance
	}
	if p.ProbeLimit == nil {
		n := def.ProbeLimit
		p.ProbeLimit = &n
	}
	if c.Intersect.Shapefile.Cache == nil {
		t := true
		c.Intersect.Shapefile.Cache = &t
	}
	if c.CoordinateType == 0 {
		c.CoordinateType = spatial.DefaultSRID
	}
	if c.Workers == 0 {
		c.Workers = 1
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = time.Hour
	}
}

func invalid(msg string) error { return fmt.Errorf("%w: %s", ErrInvalid, msg) }

// Validate：字段级校验，首个错误即返回
func (c *Config) Validate() error {
	if fi, err := os.Stat(c.InputFile); c.InputFile == "" || err != nil || fi.IsDir() {
		return invalid("invalid input_file parameter")
	}
	if strings.TrimSpace(c.OutputFile) == "" {
		return invalid("invalid output file")
	}
	if c.Delimiter == "" {
		return invalid("invalid delimiter")
	}
	switch strings.ToUpper(c.Header) {
	case "S", "Y", "N":
	default:
		return invalid("invalid header parameter (S/N)")
	}
	if c.ColumnX < 0 || c.ColumnY < 0 {
		return invalid("invalid coordinate column position")
	}
	if c.Workers < 1 {
		return invalid("workers must be >= 1")
	}
	if strings.TrimSpace(c.Intersect.Data) == "" {
		return invalid("invalid intersect data parameter")
	}
	switch c.Intersect.Type {
	case ModeShapefile:
		p := c.Intersect.Shapefile.Path
		if fi, err := os.Stat(p); p == "" || err != nil || fi.IsDir() {
			return invalid("invalid shapefile path parameter")
		}
	case ModeDatabase:
		d := c.Intersect.Database
		if d.URL == "" || d.Username == "" || d.Password == "" {
			return invalid("invalid database connection parameters")
		}
	default:
		return invalid("invalid intersect type parameter")
	}
	if c.Cache.LRUSize < 0 {
		return invalid("cache lru_size must be >= 0")
	}
	if err := c.SearchParameters().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// HasHeader：输入首行为表头
func (c *Config) HasHeader() bool {
	h := strings.ToUpper(c.Header)
	return h == "S" || h == "Y"
}

// Columns：待追加的属性名列表（逗号分隔，去除两侧空白）
func (c *Config) Columns() []string {
	parts := strings.Split(c.Intersect.Data, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// CacheShapes：图层是否构建空间索引
func (c *Config) CacheShapes() bool {
	return c.Intersect.Shapefile.Cache == nil || *c.Intersect.Shapefile.Cache
}

func (c *Config) SearchParameters() spatial.Parameters {
	p := c.Intersect.Parameters
	limit := spatial.DefaultParameters().ProbeLimit
	if p.ProbeLimit != nil {
		limit = *p.ProbeLimit
	}
	return spatial.Parameters{
		InitialStep:       p.Increase,
		StepGrowth:        p.Growth,
		MaxAttempts:       p.Attempts,
		TargetCandidates:  p.Candidates,
		MaxSearchDistance: p.MaxDistance,
		ProbeLimit:        limit,
	}
}
