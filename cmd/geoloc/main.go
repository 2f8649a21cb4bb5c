// Command geoloc trains and applies grid-based geolocation models.
//
// Usage:
//
//	geoloc train [options] training.csv
//	geoloc classify [options] documents.csv
//	geoloc eval [options] test.csv
//	geoloc tune [options] dev.csv
//
// Training and test lines are "lat,lon,feature,feature,..."; classification
// lines carry features only. Any input may be gzip or bzip2 compressed.
// Options may also come from a YAML file (--config), from GEOLOC_* variables
// or from a .env file in the working directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/andreiashu/geoloc"
	"github.com/andreiashu/geoloc/internal/logger"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "YAML file with default options",
		EnvVars: []string{"GEOLOC_CONFIG"},
	}
	granularityFlag = &cli.IntFlag{
		Name:    "longranularity",
		Aliases: []string{"g"},
		Usage:   "longitude ticks of the grid (latitude ticks are half)",
		Value:   360,
		EnvVars: []string{"GEOLOC_LONGRANULARITY"},
	}
	noKDEFlag = &cli.BoolFlag{
		Name:    "nokde",
		Usage:   "bin occurrences instead of kernel density smoothing",
		EnvVars: []string{"GEOLOC_NOKDE"},
	}
	sigmaFlag = &cli.Float64Flag{
		Name:    "sigma",
		Aliases: []string{"s"},
		Usage:   "kernel standard deviation in degrees",
		Value:   3.0,
		EnvVars: []string{"GEOLOC_SIGMA"},
	}
	thresholdFlag = &cli.IntFlag{
		Name:    "threshold",
		Aliases: []string{"t"},
		Usage:   "minimum occurrences for a feature to be kept",
		Value:   1,
		EnvVars: []string{"GEOLOC_THRESHOLD"},
	}
	noMatrixFlag = &cli.BoolFlag{
		Name:    "nomatrix",
		Usage:   "do not store feature grids; recompute them when classifying",
		EnvVars: []string{"GEOLOC_NOMATRIX"},
	}
	stopwordsFlag = &cli.StringFlag{
		Name:    "stopwords",
		Usage:   "file of tokens excluded from training",
		EnvVars: []string{"GEOLOC_STOPWORDS"},
	}
	klFlag = &cli.BoolFlag{
		Name:    "kullback-leibler",
		Aliases: []string{"k"},
		Usage:   "classify by KL divergence instead of naive Bayes",
		EnvVars: []string{"GEOLOC_KULLBACK_LEIBLER"},
	}
	complementFlag = &cli.BoolFlag{
		Name:    "complement",
		Usage:   "complement naive Bayes",
		EnvVars: []string{"GEOLOC_COMPLEMENT"},
	}
	centroidFlag = &cli.BoolFlag{
		Name:    "centroid",
		Usage:   "report the training centroid of a cell instead of its midpoint",
		EnvVars: []string{"GEOLOC_CENTROID"},
	}
	priorFlag = &cli.Float64Flag{
		Name:    "prior",
		Usage:   "feature pseudocount",
		Value:   0.01,
		EnvVars: []string{"GEOLOC_PRIOR"},
	}
	unkFlag = &cli.BoolFlag{
		Name:    "unk",
		Usage:   "model unseen features as one unknown feature (naive Bayes only)",
		EnvVars: []string{"GEOLOC_UNK"},
	}
	printMatrixFlag = &cli.BoolFlag{
		Name:    "print-matrix",
		Usage:   "print the whole distribution of each document",
		EnvVars: []string{"GEOLOC_PRINT_MATRIX"},
	}
	modelFileFlag = &cli.StringFlag{
		Name:    "modelfile",
		Aliases: []string{"m"},
		Usage:   "model path (default model<longranularity>.gz)",
		EnvVars: []string{"GEOLOC_MODELFILE"},
	}
	tunedModelFileFlag = &cli.StringFlag{
		Name:    "tuned-modelfile",
		Usage:   "where tune writes its model (default model<longranularity>-tuned.gz)",
		EnvVars: []string{"GEOLOC_TUNED_MODELFILE"},
	}
	workersFlag = &cli.IntFlag{
		Name:    "workers",
		Aliases: []string{"j"},
		Usage:   "documents classified concurrently",
		Value:   1,
		EnvVars: []string{"GEOLOC_WORKERS"},
	}
	cacheFlag = &cli.IntFlag{
		Name:    "cache",
		Usage:   "decoded feature grids kept in memory",
		EnvVars: []string{"GEOLOC_CACHE"},
	}
	geohashFlag = &cli.IntFlag{
		Name:    "geohash",
		Usage:   "append a geohash of this precision to each estimate",
		EnvVars: []string{"GEOLOC_GEOHASH"},
	}
	filterRateFlag = &cli.Float64Flag{
		Name:    "filter-fp-rate",
		Usage:   "load the model through a Bloom filter with this false positive rate (0 = exact)",
		EnvVars: []string{"GEOLOC_FILTER_FP_RATE"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "debug, info, warn or error",
		Value:   "info",
		EnvVars: []string{"LOG_LEVEL"},
	}
	logFormatFlag = &cli.StringFlag{
		Name:    "log-format",
		Usage:   "text or json",
		Value:   "text",
		EnvVars: []string{"LOG_FORMAT"},
	}
)

var (
	commonFlags = []cli.Flag{
		configFlag,
		granularityFlag,
		noKDEFlag,
		sigmaFlag,
		modelFileFlag,
		logLevelFlag,
		logFormatFlag,
	}
	trainFlags = []cli.Flag{
		thresholdFlag,
		noMatrixFlag,
		stopwordsFlag,
	}
	classifyFlags = []cli.Flag{
		klFlag,
		complementFlag,
		centroidFlag,
		priorFlag,
		unkFlag,
		workersFlag,
		cacheFlag,
		filterRateFlag,
	}
)

// switches maps each boolean flag to the setting it controls. A flag given as
// false overrides a true value from the config file.
var switches = []struct {
	flag *cli.BoolFlag
	set  func(c *geoloc.Config, v bool)
}{
	{noKDEFlag, func(c *geoloc.Config, v bool) { c.NoKDE = v }},
	{noMatrixFlag, func(c *geoloc.Config, v bool) { c.NoMatrix = v }},
	{klFlag, func(c *geoloc.Config, v bool) { c.KullbackLeibler = v }},
	{complementFlag, func(c *geoloc.Config, v bool) { c.Complement = v }},
	{centroidFlag, func(c *geoloc.Config, v bool) { c.Centroid = v }},
	{unkFlag, func(c *geoloc.Config, v bool) { c.Unknown = v }},
	{printMatrixFlag, func(c *geoloc.Config, v bool) { c.PrintMatrix = v }},
}

func flagSet(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: .env: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "geoloc",
		Usage: "geolocate documents from the features they contain",
		Commands: []*cli.Command{
			{
				Name:      "train",
				Usage:     "train a model from lat,lon,features lines",
				ArgsUsage: "<training file>",
				Flags:     flagSet(commonFlags, trainFlags),
				Action:    train,
			},
			{
				Name:      "classify",
				Usage:     "estimate the origin of each features line",
				ArgsUsage: "<document file>",
				Flags:     flagSet(commonFlags, classifyFlags, []cli.Flag{printMatrixFlag, geohashFlag}),
				Action:    classify,
			},
			{
				Name:      "eval",
				Usage:     "report distance errors on lat,lon,features lines",
				ArgsUsage: "<test file>",
				Flags:     flagSet(commonFlags, classifyFlags),
				Action:    eval,
			},
			{
				Name:      "tune",
				Usage:     "adjust feature weights on held-out lat,lon,features lines",
				ArgsUsage: "<dev file>",
				Flags:     flagSet(commonFlags, classifyFlags, []cli.Flag{tunedModelFileFlag}),
				Action:    tune,
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// makeConfig layers defaults, the YAML file and explicitly set flags or
// environment variables, in that order.
func makeConfig(ctx *cli.Context) (*geoloc.Config, string, error) {
	if ctx.NArg() != 1 {
		return nil, "", cli.Exit(fmt.Sprintf("%s: expected one input file", ctx.Command.Name), 2)
	}
	log := logger.Install(logger.New(ctx.String(logLevelFlag.Name), ctx.String(logFormatFlag.Name)))

	opts := []geoloc.Option{geoloc.WithLogger(log)}
	for _, sw := range switches {
		if ctx.IsSet(sw.flag.Name) {
			v, set := ctx.Bool(sw.flag.Name), sw.set
			opts = append(opts, func(c *geoloc.Config) { set(c, v) })
		}
	}
	if ctx.IsSet(granularityFlag.Name) {
		opts = append(opts, geoloc.WithGranularity(ctx.Int(granularityFlag.Name)))
	}
	if ctx.IsSet(sigmaFlag.Name) {
		opts = append(opts, geoloc.WithSigma(ctx.Float64(sigmaFlag.Name)))
	}
	if ctx.IsSet(thresholdFlag.Name) {
		opts = append(opts, geoloc.WithThreshold(ctx.Int(thresholdFlag.Name)))
	}
	if ctx.IsSet(stopwordsFlag.Name) {
		opts = append(opts, geoloc.WithStopwords(ctx.String(stopwordsFlag.Name)))
	}
	if ctx.IsSet(priorFlag.Name) {
		opts = append(opts, geoloc.WithPrior(ctx.Float64(priorFlag.Name)))
	}
	if ctx.IsSet(modelFileFlag.Name) {
		opts = append(opts, geoloc.WithModelFile(ctx.String(modelFileFlag.Name)))
	}
	if ctx.IsSet(tunedModelFileFlag.Name) {
		opts = append(opts, geoloc.WithTunedModelFile(ctx.String(tunedModelFileFlag.Name)))
	}
	if ctx.IsSet(workersFlag.Name) {
		opts = append(opts, geoloc.WithWorkers(ctx.Int(workersFlag.Name)))
	}
	if ctx.IsSet(cacheFlag.Name) {
		opts = append(opts, geoloc.WithCache(ctx.Int(cacheFlag.Name)))
	}
	if ctx.IsSet(geohashFlag.Name) {
		opts = append(opts, geoloc.WithGeohash(ctx.Int(geohashFlag.Name)))
	}
	if ctx.IsSet(filterRateFlag.Name) {
		opts = append(opts, geoloc.WithBloomFilter(ctx.Float64(filterRateFlag.Name)))
	}

	var cfg *geoloc.Config
	if path := ctx.String(configFlag.Name); path != "" {
		var err error
		if cfg, err = geoloc.LoadConfig(path, opts...); err != nil {
			return nil, "", err
		}
	} else {
		cfg = geoloc.NewConfig(opts...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	return cfg, ctx.Args().First(), nil
}

func train(ctx *cli.Context) error {
	cfg, path, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	_, err = geoloc.TrainFile(cfg, path)
	return err
}

func classify(ctx *cli.Context) error {
	cfg, path, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	return geoloc.ClassifyFile(ctx.Context, cfg, path, os.Stdout)
}

func eval(ctx *cli.Context) error {
	cfg, path, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	_, err = geoloc.EvalFile(ctx.Context, cfg, path, os.Stdout)
	return err
}

func tune(ctx *cli.Context) error {
	cfg, path, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	_, err = geoloc.TuneFile(cfg, path)
	return err
}
