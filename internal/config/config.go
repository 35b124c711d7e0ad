package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// NeonCRM
	NeonOrgID       string
	NeonAPIKey      string
	NeonAPIEndpoint string
	NeonTimeout     time.Duration
	NeonPageSize    int
	// NeonCRM Webhook認証（ユーザー名は固定"neoncrm"）
	NeonWebhookPassword string

	// NeonCRMカスタムフィールド名
	FieldFob       string
	FieldDMMembers string
	FieldCheckr    string

	// Checkr（APIキーが未設定の場合は招待ディスパッチを無効化する）
	CheckrAPIKey            string
	CheckrAPIEndpoint       string
	CheckrPackage           string
	CheckrTimeout           time.Duration
	CheckrPerPage           int
	CheckrWorkLocationState string
	CheckrWorkLocationCity  string

	// RFID
	RFIDTokens  []string
	DefaultZone string
	// ZoneRequirements はゾーン名 → 必須カスタムフィールド名のリスト。
	ZoneRequirements map[string][]string

	// Google Sheets監査ログ
	SheetID                string
	GoogleCredentialsFile  string
	AuditQueueSize         int
	AuditAuthorizedOnly    bool
	AuditLogTemplate       string
	AuditReportTemplate    string

	// 同期
	SyncInterval  time.Duration
	SearchWindow  time.Duration
	FieldCacheTTL time.Duration

	// Timezone
	Timezone string

	// Rate Limit
	RateLimitRFID int

	// Server
	ServerPort string
}

// defaultZoneRequirements は本番のデフォルトゾーン構成。
// 以前は"front-door"に"COVID training"チェックが必須だったが、現在は要件なし。
var defaultZoneRequirements = map[string][]string{
	"front-door": {},
	"side-door":  {},
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envファイルがあれば先に読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envは存在しなくてもよい
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.NeonAPIKey = os.Getenv("NEON_API_KEY")
	if cfg.NeonAPIKey == "" {
		missing = append(missing, "NEON_API_KEY")
	}

	cfg.NeonWebhookPassword = os.Getenv("NEON_PASSWORD")
	if cfg.NeonWebhookPassword == "" {
		missing = append(missing, "NEON_PASSWORD")
	}

	cfg.SheetID = os.Getenv("RFID_SHEET_ID")
	if cfg.SheetID == "" {
		missing = append(missing, "RFID_SHEET_ID")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.NeonOrgID = getEnvString("NEON_ORG_ID", "decaturmakers")
	cfg.NeonAPIEndpoint = getEnvString("NEON_API_ENDPOINT", "https://api.neoncrm.com/v2")
	cfg.NeonTimeout = getEnvDuration("NEON_REQUEST_TIMEOUT", 10*time.Second)
	cfg.NeonPageSize = getEnvInt("NEON_MAX_PAGE_SIZE", 200)

	cfg.FieldFob = getEnvString("NEON_FIELD_FOB", "Fob10Digit")
	cfg.FieldDMMembers = getEnvString("NEON_FIELD_DM_MEMBERS", "Added to dm-members")
	cfg.FieldCheckr = getEnvString("NEON_FIELD_CHECKR", "Invited to Checkr")

	cfg.CheckrAPIKey = os.Getenv("CHECKR_API_KEY")
	cfg.CheckrAPIEndpoint = getEnvString("CHECKR_API_ENDPOINT", "https://api.checkr.com/v1")
	cfg.CheckrPackage = os.Getenv("CHECKR_PACKAGE")
	cfg.CheckrTimeout = getEnvDuration("CHECKR_REQUEST_TIMEOUT", 30*time.Second)
	cfg.CheckrPerPage = getEnvInt("CHECKR_PER_PAGE", 100)
	cfg.CheckrWorkLocationState = getEnvString("CHECKR_WORK_LOCATION_STATE", "GA")
	cfg.CheckrWorkLocationCity = getEnvString("CHECKR_WORK_LOCATION_CITY", "Atlanta")

	cfg.RFIDTokens = splitTokens(os.Getenv("RFID_TOKENS"))
	cfg.DefaultZone = getEnvString("DEFAULT_ZONE", "front-door")

	zones, err := parseZoneRequirements(os.Getenv("ZONE_REQUIREMENTS"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ZONE_REQUIREMENTS: %w", err)
	}
	cfg.ZoneRequirements = zones

	cfg.GoogleCredentialsFile = getEnvString("GOOGLE_CREDENTIALS_FILE", "./rfid-sheet-service-account.json")
	cfg.AuditQueueSize = getEnvInt("AUDIT_QUEUE_SIZE", 1024)
	cfg.AuditAuthorizedOnly = getEnvBool("AUDIT_AUTHORIZED_ONLY", false)
	cfg.AuditLogTemplate = getEnvString("AUDIT_LOG_TEMPLATE", "Log Template")
	cfg.AuditReportTemplate = getEnvString("AUDIT_REPORT_TEMPLATE", "Month Report Template")

	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 10*time.Minute)
	cfg.SearchWindow = getEnvDuration("SEARCH_WINDOW", 7*24*time.Hour)
	cfg.FieldCacheTTL = getEnvDuration("FIELD_CACHE_TTL", time.Minute)

	cfg.Timezone = getEnvString("TIMEZONE", "America/New_York")

	cfg.RateLimitRFID = getEnvInt("RATE_LIMIT_RFID", 120)

	cfg.ServerPort = getEnvString("SERVER_PORT", "5050")

	return cfg, nil
}

// CheckrEnabled はCheckr招待ディスパッチが有効かどうかを返す。
func (c *Config) CheckrEnabled() bool {
	return c.CheckrAPIKey != ""
}

// splitTokens はスペース区切りのトークンリストをパースする。
// 空要素は除外する。
func splitTokens(s string) []string {
	var tokens []string
	for _, t := range strings.Fields(s) {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// parseZoneRequirements はZONE_REQUIREMENTS環境変数（JSONオブジェクト）をパースする。
// 未設定の場合はデフォルトのゾーン構成を返す。
func parseZoneRequirements(s string) (map[string][]string, error) {
	if s == "" {
		zones := make(map[string][]string, len(defaultZoneRequirements))
		for zone, fields := range defaultZoneRequirements {
			zones[zone] = append([]string{}, fields...)
		}
		return zones, nil
	}

	var zones map[string][]string
	if err := json.Unmarshal([]byte(s), &zones); err != nil {
		return nil, err
	}
	if len(zones) == 0 {
		return nil, fmt.Errorf("at least one zone must be defined")
	}
	return zones, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
