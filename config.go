package flowz

import "github.com/spf13/pflag"

// BindFlags registers --processes, --threads, --queue, and --rate on fs,
// writing into c. Call after fs.Parse to read the resolved Config, or pass
// c straight to NewWorkPipeline once flags are parsed — zero fields still
// take their documented defaults via Config.withDefaults.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.Processes, "processes", DefaultProcesses, "number of work worker processes (P)")
	fs.IntVar(&c.Threads, "threads", DefaultThreads, "thread-pool size per work worker (W)")
	fs.IntVar(&c.Queue, "queue", DefaultQueue, "capacity of the cross-worker queue (Q)")
	fs.Float64Var(&c.Rate, "rate", DefaultRate, "target global calls per second (R)")
}

// NewConfigFlagSet builds a pflag.FlagSet pre-bound to a fresh Config and
// returns both, for callers that want a standalone flag set (e.g. a cobra
// command's Flags()).
func NewConfigFlagSet(name string) (*Config, *pflag.FlagSet) {
	cfg := &Config{}
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	cfg.BindFlags(fs)
	return cfg, fs
}
