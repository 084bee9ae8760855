package config

// Overrides captures CLI supplied values. Zero values leave the config
// untouched. The loss weights are pointers because zero is a meaningful
// weight; nil leaves them untouched.
type Overrides struct {
	InputDir     string
	TargetDir    string
	Synthetic    int
	Height       int
	Width        int
	Timesteps    int
	Epochs       int
	BatchSize    int
	LearningRate float32
	Optimizer    string
	MSEWeight    *float32
	SSIMWeight   *float32
	Seed         int64
	NonFinite    string
	Device       string
	Workers      int
	LogLevel     string
	LogFormat    string
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.InputDir != "" {
		c.Data.InputDir = o.InputDir
	}
	if o.TargetDir != "" {
		c.Data.TargetDir = o.TargetDir
	}
	if o.Synthetic > 0 {
		c.Data.Synthetic = o.Synthetic
	}
	if o.Height > 0 {
		c.Model.Height = o.Height
	}
	if o.Width > 0 {
		c.Model.Width = o.Width
	}
	if o.Timesteps > 0 {
		c.Model.Timesteps = o.Timesteps
	}
	if o.Epochs > 0 {
		c.Train.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.Train.BatchSize = o.BatchSize
	}
	if o.LearningRate > 0 {
		c.Train.LearningRate = o.LearningRate
	}
	if o.Optimizer != "" {
		c.Train.Optimizer = o.Optimizer
	}
	if o.MSEWeight != nil {
		c.Loss.MSEWeight = *o.MSEWeight
	}
	if o.SSIMWeight != nil {
		c.Loss.SSIMWeight = *o.SSIMWeight
	}
	if o.Seed != 0 {
		c.Train.Seed = o.Seed
		c.Model.Seed = o.Seed
	}
	if o.NonFinite != "" {
		c.Train.NonFinite = o.NonFinite
	}
	if o.Device != "" {
		c.Runtime.Device = o.Device
	}
	if o.Workers > 0 {
		c.Runtime.Workers = o.Workers
	}
	if o.LogLevel != "" {
		c.Runtime.LogLevel = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Runtime.LogFormat = o.LogFormat
	}
}
