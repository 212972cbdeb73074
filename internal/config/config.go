package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultAddr is the default TCP address a channel peer listens on.
	DefaultAddr = ":43127"

	// DefaultBoardSize is the board edge length new channels are constructed with
	// when no size is negotiated out of band.
	DefaultBoardSize = 19

	// DefaultSigningMode is the signing mode new channels are constructed with.
	// Per spec §9 signing mode is always a per-channel construction parameter,
	// never a process-global switch; this only supplies the default a binary
	// passes to channel.New when the caller does not override it.
	DefaultSigningMode = SigningModeStrict

	// DefaultDedupWindowCapacity bounds the FIFO window of (sender, sequence)
	// pairs a channel remembers to reject replayed remote records.
	DefaultDedupWindowCapacity = 1024

	// DefaultSnapshotMoveThreshold and DefaultSnapshotTimeThreshold gate when
	// a channel persists a snapshot: a write is due once this many moves have
	// been appended, OR once this much time has elapsed with at least one
	// move appended since the last snapshot.
	DefaultSnapshotMoveThreshold = 10
	DefaultSnapshotTimeThreshold = 30 * time.Second

	// DefaultSnapshotCompressMoves is the move count at or above which a
	// persisted snapshot is zstd-compressed instead of snappy-compressed.
	DefaultSnapshotCompressMoves = 1000

	// DefaultSnapshotDir is where snapshot files are written.
	DefaultSnapshotDir = "./data/snapshots"

	// DefaultAckWatchdogTimeout is how long a channel waits for a MoveAck
	// after a local submit_local before it fires a SyncRequest.
	DefaultAckWatchdogTimeout = 3 * time.Second

	// DefaultTransport selects which Transport implementation channelctl
	// wires up when CHANNEL_TRANSPORT is unset.
	DefaultTransport = TransportWebsocket

	// DefaultPingInterval controls the keepalive cadence for WebSocket connections.
	DefaultPingInterval = 30 * time.Second
	// DefaultMaxPayloadBytes limits inbound WebSocket frame size.
	DefaultMaxPayloadBytes int64 = 1 << 20
	// DefaultMaxClients bounds concurrent WebSocket connections. Zero disables the limit.
	DefaultMaxClients = 256

	// DefaultLogLevel controls verbosity for channel logs.
	DefaultLogLevel = "info"
	// DefaultLogPath is where structured logs are written.
	DefaultLogPath = "channel.log"
	// DefaultLogMaxSizeMB caps the size of a single log file before rotation.
	DefaultLogMaxSizeMB = 100
	// DefaultLogMaxBackups limits retained rotated log files.
	DefaultLogMaxBackups = 10
	// DefaultLogMaxAgeDays controls how long rotated log files are kept on disk.
	DefaultLogMaxAgeDays = 7
	// DefaultLogCompress toggles gzip compression for rotated log files.
	DefaultLogCompress = true
)

// SigningMode selects whether a channel requires every ingested remote record
// to carry a valid signature (strict) or merely verifies signatures that are
// present without rejecting unsigned ones (relaxed).
type SigningMode string

const (
	SigningModeStrict  SigningMode = "strict"
	SigningModeRelaxed SigningMode = "relaxed"
)

// TransportKind selects the default Transport implementation a binary wires
// up. The channel core itself never depends on a concrete transport.
type TransportKind string

const (
	TransportWebsocket TransportKind = "websocket"
	TransportGRPC      TransportKind = "grpc"
)

// Config captures all runtime tunables for a channel peer process.
type Config struct {
	Address        string
	AllowedOrigins []string
	Transport      TransportKind
	TLSCertPath    string
	TLSKeyPath     string
	TicketKey      string

	MaxPayloadBytes int64
	PingInterval    time.Duration
	MaxClients      int

	BoardSize           int
	SigningMode         SigningMode
	DedupWindowCapacity int
	AckWatchdogTimeout  time.Duration

	SnapshotDir           string
	SnapshotMoveThreshold int
	SnapshotTimeThreshold time.Duration
	SnapshotCompressMoves int

	Logging LoggingConfig
}

// LoggingConfig captures structured logging configuration options.
type LoggingConfig struct {
	Level      string
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Load reads the channel peer configuration from environment variables,
// applying sane defaults and returning descriptive errors for invalid
// overrides.
func Load() (*Config, error) {
	cfg := &Config{
		Address:             getString("CHANNEL_ADDR", DefaultAddr),
		AllowedOrigins:      parseList(os.Getenv("CHANNEL_ALLOWED_ORIGINS")),
		Transport:           DefaultTransport,
		TLSCertPath:         strings.TrimSpace(os.Getenv("CHANNEL_TLS_CERT")),
		TLSKeyPath:          strings.TrimSpace(os.Getenv("CHANNEL_TLS_KEY")),
		TicketKey:           strings.TrimSpace(os.Getenv("CHANNEL_TICKET_KEY")),
		MaxPayloadBytes:     DefaultMaxPayloadBytes,
		PingInterval:        DefaultPingInterval,
		MaxClients:          DefaultMaxClients,
		BoardSize:           DefaultBoardSize,
		SigningMode:         DefaultSigningMode,
		DedupWindowCapacity: DefaultDedupWindowCapacity,
		AckWatchdogTimeout:  DefaultAckWatchdogTimeout,
		SnapshotDir:           strings.TrimSpace(getString("CHANNEL_SNAPSHOT_DIR", DefaultSnapshotDir)),
		SnapshotMoveThreshold: DefaultSnapshotMoveThreshold,
		SnapshotTimeThreshold: DefaultSnapshotTimeThreshold,
		SnapshotCompressMoves: DefaultSnapshotCompressMoves,
		Logging: LoggingConfig{
			Level:      strings.TrimSpace(getString("CHANNEL_LOG_LEVEL", DefaultLogLevel)),
			Path:       strings.TrimSpace(getString("CHANNEL_LOG_PATH", DefaultLogPath)),
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
			MaxAgeDays: DefaultLogMaxAgeDays,
			Compress:   DefaultLogCompress,
		},
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_MAX_PAYLOAD_BYTES")); raw != "" {
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_MAX_PAYLOAD_BYTES must be a positive integer, got %q", raw))
		} else {
			cfg.MaxPayloadBytes = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_PING_INTERVAL")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_PING_INTERVAL must be a positive duration, got %q", raw))
		} else {
			cfg.PingInterval = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_MAX_CLIENTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_MAX_CLIENTS must be a non-negative integer, got %q", raw))
		} else {
			cfg.MaxClients = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_BOARD_SIZE")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_BOARD_SIZE must be a positive integer, got %q", raw))
		} else {
			cfg.BoardSize = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_SIGNING_MODE")); raw != "" {
		switch SigningMode(raw) {
		case SigningModeStrict, SigningModeRelaxed:
			cfg.SigningMode = SigningMode(raw)
		default:
			problems = append(problems, fmt.Sprintf("CHANNEL_SIGNING_MODE must be %q or %q, got %q", SigningModeStrict, SigningModeRelaxed, raw))
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_TRANSPORT")); raw != "" {
		switch TransportKind(raw) {
		case TransportWebsocket, TransportGRPC:
			cfg.Transport = TransportKind(raw)
		default:
			problems = append(problems, fmt.Sprintf("CHANNEL_TRANSPORT must be %q or %q, got %q", TransportWebsocket, TransportGRPC, raw))
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_DEDUP_WINDOW")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_DEDUP_WINDOW must be a positive integer, got %q", raw))
		} else {
			cfg.DedupWindowCapacity = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_ACK_WATCHDOG")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_ACK_WATCHDOG must be a positive duration, got %q", raw))
		} else {
			cfg.AckWatchdogTimeout = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_SNAPSHOT_MOVE_THRESHOLD")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_SNAPSHOT_MOVE_THRESHOLD must be a positive integer, got %q", raw))
		} else {
			cfg.SnapshotMoveThreshold = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_SNAPSHOT_TIME_THRESHOLD")); raw != "" {
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_SNAPSHOT_TIME_THRESHOLD must be a positive duration, got %q", raw))
		} else {
			cfg.SnapshotTimeThreshold = duration
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_SNAPSHOT_COMPRESS_MOVES")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_SNAPSHOT_COMPRESS_MOVES must be a positive integer, got %q", raw))
		} else {
			cfg.SnapshotCompressMoves = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_LOG_MAX_SIZE_MB")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_LOG_MAX_SIZE_MB must be a positive integer, got %q", raw))
		} else {
			cfg.Logging.MaxSizeMB = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_LOG_MAX_BACKUPS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_LOG_MAX_BACKUPS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxBackups = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_LOG_MAX_AGE_DAYS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("CHANNEL_LOG_MAX_AGE_DAYS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Logging.MaxAgeDays = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("CHANNEL_LOG_COMPRESS")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			problems = append(problems, fmt.Sprintf("CHANNEL_LOG_COMPRESS must be a boolean value, got %q", raw))
		} else {
			cfg.Logging.Compress = value
		}
	}

	if (cfg.TLSCertPath == "") != (cfg.TLSKeyPath == "") {
		problems = append(problems, "CHANNEL_TLS_CERT and CHANNEL_TLS_KEY must be provided together")
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf(strings.Join(problems, "; "))
	}

	return cfg, nil
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
