package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env          string
		Build        string
		AppName      string
		Debug        bool
		TestMode     bool
		SecretKey    string
		WorkDir      string
		RollbarToken string

		Server    ServerConfig
		Database  DatabaseConfig
		Redis     RedisConfig
		Templates TemplatesConfig
		Uploads   UploadsConfig
		Admin     AdminConfig
		Notify    NotifyConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		EditorIdleTimeout  time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		DraftTTL time.Duration
	}

	// TemplatesConfig points at the external template service (sign-upload and enqueue-import endpoints).
	TemplatesConfig struct {
		BaseURL        string
		Status         string
		Token          string
		RequestTimeout time.Duration
		UploadTimeout  time.Duration
	}

	UploadsConfig struct {
		StagingDir    string
		MaxImageBytes int64
		MaxAudioBytes int64
	}

	AdminConfig struct {
		Username     string
		PasswordHash string
	}

	NotifyConfig struct {
		SendgridAPIKey   string
		DefaultFromEmail string
		Recipients       []string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig reads the configuration from the environment.
// `ENV` selects the env prefix (DEV by default) and the optional `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Prepdesk")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x8f!2kq$u0-m3v@c9z&l7w#t1b^e5r*h")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "localhost")
	v.SetDefault("serverAddress", ":8000")
	v.SetDefault("serverDebugHost", ":4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 8*time.Hour)
	v.SetDefault("serverEditorIdleTimeout", 2*time.Hour)

	v.SetDefault("databaseEngine", "postgres")
	v.SetDefault("databaseHost", "localhost")
	v.SetDefault("databasePort", "5432")
	v.SetDefault("databaseName", "prepdesk")
	v.SetDefault("databaseUser", "prepdesk")
	v.SetDefault("databasePassword", "")
	v.SetDefault("databaseAdminUser", "postgres")
	v.SetDefault("databaseAdminPassword", "")
	v.SetDefault("databaseDisableTLS", true)

	v.SetDefault("redisAddr", "localhost:6379")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)
	v.SetDefault("redisDraftTTL", 7*24*time.Hour)

	v.SetDefault("templatesBaseURL", "http://localhost:8080/api")
	v.SetDefault("templatesStatus", "DRAFT")
	v.SetDefault("templatesToken", "")
	v.SetDefault("templatesRequestTimeout", 30*time.Second)
	v.SetDefault("templatesUploadTimeout", 2*time.Minute)

	v.SetDefault("uploadsStagingDir", filepath.Join(os.TempDir(), "prepdesk-staging"))
	v.SetDefault("uploadsMaxImageBytes", int64(5<<20))
	v.SetDefault("uploadsMaxAudioBytes", int64(10<<20))

	v.SetDefault("adminUsername", "admin")
	v.SetDefault("adminPasswordHash", "")

	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("notifyRecipients", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		WorkDir:      wd,
		RollbarToken: v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:               v.GetString("serverHost"),
			Address:            v.GetString("serverAddress"),
			DebugHost:          v.GetString("serverDebugHost"),
			ShutdownTimeout:    v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("jwtExpirationDelta"),
			EditorIdleTimeout:  v.GetDuration("serverEditorIdleTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("databaseEngine"),
			Host:          v.GetString("databaseHost"),
			Port:          v.GetString("databasePort"),
			Name:          v.GetString("databaseName"),
			User:          v.GetString("databaseUser"),
			Password:      v.GetString("databasePassword"),
			AdminUser:     v.GetString("databaseAdminUser"),
			AdminPassword: v.GetString("databaseAdminPassword"),
			DisableTLS:    v.GetBool("databaseDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
			DraftTTL: v.GetDuration("redisDraftTTL"),
		},
		Templates: TemplatesConfig{
			BaseURL:        strings.TrimRight(v.GetString("templatesBaseURL"), "/"),
			Status:         v.GetString("templatesStatus"),
			Token:          v.GetString("templatesToken"),
			RequestTimeout: v.GetDuration("templatesRequestTimeout"),
			UploadTimeout:  v.GetDuration("templatesUploadTimeout"),
		},
		Uploads: UploadsConfig{
			StagingDir:    v.GetString("uploadsStagingDir"),
			MaxImageBytes: v.GetInt64("uploadsMaxImageBytes"),
			MaxAudioBytes: v.GetInt64("uploadsMaxAudioBytes"),
		},
		Admin: AdminConfig{
			Username:     v.GetString("adminUsername"),
			PasswordHash: v.GetString("adminPasswordHash"),
		},
		Notify: NotifyConfig{
			SendgridAPIKey:   v.GetString("sendgridApiKey"),
			DefaultFromEmail: v.GetString("defaultFromEmail"),
			Recipients:       splitList(v.GetString("notifyRecipients")),
		},
	}
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = CleanString(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
