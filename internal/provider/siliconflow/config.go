package siliconflow

// Config contains SiliconFlow endpoint configuration.
//   - APIKey: bearer credential, required
//   - BaseURL: endpoint root, "/chat/completions" is appended
//   - Model: model identifier sent with every request
//   - Timeout: per-attempt transport timeout (in seconds)
//   - MaxAttempts: total attempts per call, including the first
type Config struct {
	APIKey      string `env:"SILICONFLOW_API_KEY"`
	BaseURL     string `env:"SILICONFLOW_BASE_URL"     envDefault:"https://api.siliconflow.cn/v1"`
	Model       string `env:"MODEL_NAME"               envDefault:"Qwen/QwQ-32B"`
	Timeout     int    `env:"SILICONFLOW_TIMEOUT"      envDefault:"90"`
	MaxAttempts int    `env:"SILICONFLOW_MAX_ATTEMPTS" envDefault:"3"`
}
