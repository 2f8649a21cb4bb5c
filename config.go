package geoloc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrUnknownWithKL is returned when unknown-feature modelling is combined with
// the Kullback-Leibler classifier, for which it is not defined.
var ErrUnknownWithKL = errors.New("geoloc: unknown-feature modelling requires naive Bayes")

// Config holds every knob of training and classification. Field tags match
// the command-line option names so a YAML file can carry the same settings.
type Config struct {
	Granularity Granularity `yaml:"longranularity"` // longitude ticks; latitude ticks are half
	NoKDE       bool        `yaml:"nokde"`          // bin observations instead of kernel smoothing
	Sigma       float64     `yaml:"sigma"`          // kernel standard deviation in degrees
	Threshold   int         `yaml:"threshold"`      // minimum occurrences to keep a feature
	NoMatrix    bool        `yaml:"nomatrix"`       // do not persist per-feature grids
	Stopwords   string      `yaml:"stopwords"`      // file of tokens excluded from training

	KullbackLeibler bool    `yaml:"kullback-leibler"`
	Complement      bool    `yaml:"complement"` // complement naive Bayes
	Centroid        bool    `yaml:"centroid"`   // report the cell centroid instead of its midpoint
	Prior           float64 `yaml:"prior"`      // per-feature pseudocount
	Unknown         bool    `yaml:"unk"`        // fold unseen features into one synthetic feature
	PrintMatrix     bool    `yaml:"print-matrix"`

	ModelFile      string `yaml:"modelfile"`
	TunedModelFile string `yaml:"tuned-modelfile"`

	Workers                 int     `yaml:"workers"`        // documents scored concurrently
	CacheSize               int     `yaml:"cache"`          // decoded feature grids kept in memory
	GeohashPrecision        int     `yaml:"geohash"`        // append a geohash to estimates, 0 = off
	FilterFalsePositiveRate float64 `yaml:"filter-fp-rate"` // Bloom vocabulary filter, 0 = exact

	Logger *slog.Logger `yaml:"-"`
}

// Option is a functional option for configuring training and classification.
type Option func(*Config)

// WithGranularity sets the number of longitude ticks.
func WithGranularity(w int) Option { return func(c *Config) { c.Granularity = Granularity(w) } }

// WithNoKDE disables kernel smoothing.
func WithNoKDE() Option { return func(c *Config) { c.NoKDE = true } }

// WithSigma sets the kernel standard deviation in degrees.
func WithSigma(sigma float64) Option { return func(c *Config) { c.Sigma = sigma } }

// WithThreshold sets the minimum occurrence count of persisted features.
func WithThreshold(n int) Option { return func(c *Config) { c.Threshold = n } }

// WithNoMatrix omits per-feature grids from written models.
func WithNoMatrix() Option { return func(c *Config) { c.NoMatrix = true } }

// WithStopwords sets the stopword file used during training.
func WithStopwords(path string) Option { return func(c *Config) { c.Stopwords = path } }

// WithKullbackLeibler selects the KL-divergence classifier.
func WithKullbackLeibler() Option { return func(c *Config) { c.KullbackLeibler = true } }

// WithComplement selects complement naive Bayes.
func WithComplement() Option { return func(c *Config) { c.Complement = true } }

// WithCentroid reports cell centroids instead of midpoints.
func WithCentroid() Option { return func(c *Config) { c.Centroid = true } }

// WithPrior sets the per-feature pseudocount.
func WithPrior(p float64) Option { return func(c *Config) { c.Prior = p } }

// WithUnknown models unseen features as one synthetic feature.
func WithUnknown() Option { return func(c *Config) { c.Unknown = true } }

// WithPrintMatrix outputs the whole distribution for each document.
func WithPrintMatrix() Option { return func(c *Config) { c.PrintMatrix = true } }

// WithModelFile overrides the default model path.
func WithModelFile(path string) Option { return func(c *Config) { c.ModelFile = path } }

// WithTunedModelFile overrides where Tune writes its model.
func WithTunedModelFile(path string) Option { return func(c *Config) { c.TunedModelFile = path } }

// WithWorkers sets how many documents are scored concurrently.
func WithWorkers(n int) Option { return func(c *Config) { c.Workers = n } }

// WithCache keeps up to n decoded feature grids in memory.
func WithCache(n int) Option { return func(c *Config) { c.CacheSize = n } }

// WithGeohash appends a geohash of the given precision to each estimate.
func WithGeohash(precision int) Option { return func(c *Config) { c.GeohashPrecision = precision } }

// WithBloomFilter loads models through a Bloom vocabulary filter with the
// given false positive rate.
func WithBloomFilter(rate float64) Option {
	return func(c *Config) { c.FilterFalsePositiveRate = rate }
}

// WithLogger sets the logger for progress messages.
func WithLogger(l *slog.Logger) Option { return func(c *Config) { c.Logger = l } }

// defaultConfig returns the default configuration.
func defaultConfig() *Config {
	return &Config{
		Granularity: 360,
		Sigma:       3.0,
		Threshold:   1,
		Prior:       0.01,
		Workers:     1,
	}
}

// NewConfig returns the default configuration with opts applied.
func NewConfig(opts ...Option) *Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// LoadConfig reads a YAML file over the defaults. Keys absent from the file
// keep their default value.
func LoadConfig(path string, opts ...Option) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg, nil
}

// Validate rejects settings no run can use.
func (c *Config) Validate() error {
	if err := c.Granularity.Validate(); err != nil {
		return err
	}
	switch {
	case !c.NoKDE && c.Sigma <= 0:
		return errors.Errorf("geoloc: sigma must be positive, got %g", c.Sigma)
	case c.Prior <= 0:
		return errors.Errorf("geoloc: prior must be positive, got %g", c.Prior)
	case c.Threshold < 0:
		return errors.Errorf("geoloc: threshold must not be negative, got %d", c.Threshold)
	case c.Workers < 1:
		return errors.Errorf("geoloc: workers must be at least 1, got %d", c.Workers)
	case c.CacheSize < 0:
		return errors.Errorf("geoloc: cache size must not be negative, got %d", c.CacheSize)
	case c.GeohashPrecision < 0 || c.GeohashPrecision > 12:
		return errors.Errorf("geoloc: geohash precision must be in [0, 12], got %d", c.GeohashPrecision)
	case c.FilterFalsePositiveRate < 0 || c.FilterFalsePositiveRate >= 1:
		return errors.Errorf("geoloc: filter false positive rate must be in [0, 1), got %g", c.FilterFalsePositiveRate)
	case c.Unknown && c.KullbackLeibler:
		return ErrUnknownWithKL
	}
	return nil
}

// Smoothing returns the density settings.
func (c *Config) Smoothing() Smoothing {
	return Smoothing{NoKDE: c.NoKDE, Sigma: c.Sigma}
}

// ModelPath returns the model file, derived from the granularity unless set.
func (c *Config) ModelPath() string {
	if c.ModelFile != "" {
		return c.ModelFile
	}
	return fmt.Sprintf("model%d.gz", int(c.Granularity))
}

// TunedModelPath returns where Tune writes its model.
func (c *Config) TunedModelPath() string {
	if c.TunedModelFile != "" {
		return c.TunedModelFile
	}
	return fmt.Sprintf("model%d-tuned.gz", int(c.Granularity))
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
