package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Session      SessionConfig
	Logger       LoggerConfig
	Classifier   ClassifierConfig
	Jurisdiction JurisdictionConfig
	LLM          LLMConfig
	Providers    ProvidersConfig
}

type LoggerConfig struct {
	Level string
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
}

func (c DatabaseConfig) DSN() string {
	return "host=" + c.Host + " port=" + c.Port + " user=" + c.User +
		" password=" + c.Password + " dbname=" + c.DBName + " sslmode=" + c.SSLMode
}

type JWTConfig struct {
	SecretKey  string
	Expiration time.Duration
}

type SessionConfig struct {
	Secret       string
	SecureCookie bool
}

type ClassifierConfig struct {
	OKThreshold           float64
	HighAmount            int64
	HintEnabled           bool
	HintMinScore          float64
	MappingFile           string
	AllowAmountCorrection bool
}

type JurisdictionConfig struct {
	ProfilesFile string
}

type LLMConfig struct {
	Timeout  time.Duration
	Ollama   OllamaConfig
	Gemini   APIModelConfig
	Claude   APIModelConfig
	GigaChat GigaChatConfig
}

type OllamaConfig struct {
	Enabled bool
	BaseURL string
	Model   string
}

type APIModelConfig struct {
	Enabled bool
	APIKey  string
	Model   string
}

type GigaChatConfig struct {
	Enabled            bool
	APIKey             string
	Scope              string
	Model              string
	InsecureSkipVerify bool
}

type ProvidersConfig struct {
	Marker            string
	RequestsPerSecond float64
	Freee             OAuthClientConfig
	QuickBooks        OAuthClientConfig
	Xero              OAuthClientConfig
	XeroContact       string
}

type OAuthClientConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

func Load() (*Config, error) {
	// .env is optional; plain environment variables work the same (Docker/K8s)
	for _, envFile := range []string{".env", "../.env", "../../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))
	jwtExp, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	llmTimeout, _ := strconv.Atoi(getEnv("LLM_TIMEOUT_SECONDS", "20"))
	okThreshold, _ := strconv.ParseFloat(getEnv("CLASSIFIER_OK_THRESHOLD", "0.8"), 64)
	highAmount, _ := strconv.ParseInt(getEnv("CLASSIFIER_HIGH_AMOUNT", "50000"), 10, 64)
	hintMinScore, _ := strconv.ParseFloat(getEnv("CLASSIFIER_HINT_MIN_SCORE", "0.6"), 64)
	rps, _ := strconv.ParseFloat(getEnv("PROVIDER_REQUESTS_PER_SECOND", "4"), 64)
	maxConns, _ := strconv.Atoi(getEnv("DB_MAX_CONNS", "10"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		Database: DatabaseConfig{
			Enabled:  getBool("DB_ENABLED", true),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "autobook"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(maxConns),
		},
		JWT: JWTConfig{
			SecretKey:  getEnv("JWT_SECRET_KEY", "your-secret-key-change-in-production"),
			Expiration: time.Duration(jwtExp) * time.Hour,
		},
		Session: SessionConfig{
			Secret:       getEnv("SESSION_SECRET", "change-me-session-secret"),
			SecureCookie: getBool("SESSION_SECURE_COOKIE", true),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Classifier: ClassifierConfig{
			OKThreshold:           okThreshold,
			HighAmount:            highAmount,
			HintEnabled:           getBool("CLASSIFIER_HINT_ENABLED", true),
			HintMinScore:          hintMinScore,
			MappingFile:           getEnv("ACCOUNT_MAPPING_FILE", ""),
			AllowAmountCorrection: getBool("ALLOW_AMOUNT_CORRECTION", true),
		},
		Jurisdiction: JurisdictionConfig{
			ProfilesFile: getEnv("JURISDICTION_PROFILES_FILE", ""),
		},
		LLM: LLMConfig{
			Timeout: time.Duration(llmTimeout) * time.Second,
			Ollama: OllamaConfig{
				Enabled: getBool("OLLAMA_ENABLED", false),
				BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
				Model:   getEnv("OLLAMA_MODEL", "llama3.1"),
			},
			Gemini: APIModelConfig{
				Enabled: getBool("GEMINI_ENABLED", false),
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				Model:   getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			Claude: APIModelConfig{
				Enabled: getBool("CLAUDE_ENABLED", false),
				APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
				Model:   getEnv("CLAUDE_MODEL", "claude-3-5-haiku-latest"),
			},
			GigaChat: GigaChatConfig{
				Enabled:            getBool("GIGACHAT_ENABLED", false),
				APIKey:             getEnv("GIGACHAT_API_KEY", ""),
				Scope:              getEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS"),
				Model:              getEnv("GIGACHAT_MODEL", "GigaChat"),
				InsecureSkipVerify: getBool("GIGACHAT_INSECURE_SKIP_VERIFY", false),
			},
		},
		Providers: ProvidersConfig{
			Marker:            getEnv("PROVIDER_DRAFT_MARKER", "[autobook]"),
			RequestsPerSecond: rps,
			Freee:             oauthClient("FREEE"),
			QuickBooks:        oauthClient("QUICKBOOKS"),
			Xero:              oauthClient("XERO"),
			XeroContact:       getEnv("XERO_DEFAULT_CONTACT", "Autobook Expenses"),
		},
	}, nil
}

func oauthClient(prefix string) OAuthClientConfig {
	return OAuthClientConfig{
		ClientID:     getEnv(prefix+"_CLIENT_ID", ""),
		ClientSecret: getEnv(prefix+"_CLIENT_SECRET", ""),
		BaseURL:      getEnv(prefix+"_BASE_URL", ""),
		TokenURL:     getEnv(prefix+"_TOKEN_URL", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(getEnv(key, strconv.FormatBool(defaultValue))))
	if err != nil {
		return defaultValue
	}
	return v
}
