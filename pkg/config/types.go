package config

import "time"

// Default values applied by ApplyDefaults
const (
	DefaultClusterGroup = "FileServerCluster"
	DefaultRPCGroup     = "FileServerRPC"

	DefaultLockTimeout          = 30 * time.Second
	DefaultQuorumTimeout        = 15 * time.Second
	DefaultTransactionTimeout   = 5 * time.Second
	DefaultStateTransferTimeout = 10 * time.Second
	DefaultUndoTTL              = 2 * time.Minute

	DefaultHeartbeatInterval = 1 * time.Second
	DefaultFailureTimeout    = 5 * time.Second
	DefaultJoinTimeout       = 3 * time.Second

	DefaultGatewayAttempts       = 3
	DefaultGatewayRequestTimeout = 60 * time.Second

	DefaultTokenTTL        = 30 * time.Minute
	DefaultShutdownTimeout = 10 * time.Second
)

// GroupConfig describes membership in one named group.
type GroupConfig struct {
	Name              string        `yaml:"name"`
	Transport         string        `yaml:"transport" validate:"omitempty,oneof=nng zmq"`
	Bind              string        `yaml:"bind" validate:"required"`
	StateBind         string        `yaml:"state_bind"`
	Seeds             []string      `yaml:"seeds"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	FailureTimeout    time.Duration `yaml:"failure_timeout"`
	JoinTimeout       time.Duration `yaml:"join_timeout"`
}

// HTTPConfig describes the RPC listener and the URL peers use to reach it.
type HTTPConfig struct {
	Listen          string        `yaml:"listen" validate:"required"`
	AdvertiseURL    string        `yaml:"advertise_url"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TimeoutConfig bounds every blocking wait in the coordination layer.
type TimeoutConfig struct {
	Lock          time.Duration `yaml:"lock"`
	Quorum        time.Duration `yaml:"quorum"`
	Transaction   time.Duration `yaml:"transaction"`
	StateTransfer time.Duration `yaml:"state_transfer"`
	UndoTTL       time.Duration `yaml:"undo_ttl"`
}

// S3Config configures the S3 blob backend.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// StorageConfig selects where file bytes live.
type StorageConfig struct {
	Backend string   `yaml:"backend" validate:"omitempty,oneof=disk s3 memory"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// AccountsConfig selects the account store and credential scheme.
type AccountsConfig struct {
	Backend     string `yaml:"backend" validate:"omitempty,oneof=memory file postgres"`
	File        string `yaml:"file"`
	DatabaseURL string `yaml:"database_url"`
	Scheme      string `yaml:"password_scheme" validate:"omitempty,oneof=plaintext bcrypt"`
}

// AuthConfig configures token issuance.
type AuthConfig struct {
	Secret       string        `yaml:"secret"`
	TokenTTL     time.Duration `yaml:"token_ttl"`
	RequireToken bool          `yaml:"require_token"`
}

// NodeConfig is the configuration of a backend file node.
type NodeConfig struct {
	ID       string         `yaml:"id" validate:"required"`
	LogLevel string         `yaml:"log_level"`
	Leader   string         `yaml:"leader_strategy" validate:"omitempty,oneof=view-creator oldest-member"`
	Cluster  GroupConfig    `yaml:"cluster"`
	RPC      GroupConfig    `yaml:"rpc"`
	HTTP     HTTPConfig     `yaml:"http"`
	Timeouts TimeoutConfig  `yaml:"timeouts"`
	Storage  StorageConfig  `yaml:"storage"`
	Accounts AccountsConfig `yaml:"accounts"`
	Auth     AuthConfig     `yaml:"auth"`
}

// GatewayConfig is the configuration of the gateway.
type GatewayConfig struct {
	ID             string        `yaml:"id" validate:"required"`
	LogLevel       string        `yaml:"log_level"`
	RPC            GroupConfig   `yaml:"rpc"`
	HTTP           HTTPConfig    `yaml:"http"`
	Attempts       int           `yaml:"attempts"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}
