// Package config 对应 config/ledger.yaml 的内容
package config

// Config 账本服务配置
type Config struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`

	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`

	// MySQL 配置；DSN 为空时退化为内存存储 (开发/演示模式)
	Mysql struct {
		DSN         string `mapstructure:"dsn"`
		MaxIdle     int    `mapstructure:"max_idle"`
		MaxOpen     int    `mapstructure:"max_open"`
		MaxLifetime int    `mapstructure:"max_lifetime"` // 秒
	} `mapstructure:"mysql"`

	// Redis 配置；Addr 为空时缓存和防重都降级
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	// 链上网关；NodeURL 为空时使用内置 mock (开发/演示模式)
	Eth struct {
		NodeURL    string `mapstructure:"node_url"`
		PrivateKey string `mapstructure:"private_key"` // 托管账户签名私钥
	} `mapstructure:"eth"`

	Trace struct {
		Endpoint string `mapstructure:"endpoint"` // otlp grpc，空则不上报
	} `mapstructure:"trace"`

	// 全局日限额 (USD，1e18 定点的整数字符串)
	Limits struct {
		DailyDepositUSD  string `mapstructure:"daily_deposit_usd"`
		DailyWithdrawUSD string `mapstructure:"daily_withdraw_usd"`
	} `mapstructure:"limits"`

	// 原生币的内置配置 (限额，最小单位)
	Native struct {
		Symbol          string `mapstructure:"symbol"`
		WithdrawalLimit string `mapstructure:"withdrawal_limit"`
		DepositLimit    string `mapstructure:"deposit_limit"`
		BankCap         string `mapstructure:"bank_cap"`
		PriceFeed       string `mapstructure:"price_feed"`
		DeviationBps    int64  `mapstructure:"deviation_bps"`
	} `mapstructure:"native"`

	Auth struct {
		AdminToken string            `mapstructure:"admin_token"`
		Tokens     map[string]string `mapstructure:"tokens"` // token -> userID
	} `mapstructure:"auth"`
}
