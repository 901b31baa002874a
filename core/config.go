package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug           bool
		TestMode        bool
		Env             string
		Build           string
		AppName         string
		SecretKey       string
		FrontendBaseURL string
		RollbarToken    string

		defaultFromEmail string

		Server struct {
			Host                      string
			DebugHost                 string
			ShutdownTimeout           time.Duration
			JWTExpirationDelta        time.Duration
			JWTRefreshExpirationDelta time.Duration
			SessionName               string
			SessionMaxAge             time.Duration
		}

		Database struct {
			Engine        string
			Host          string
			Port          int
			User          string
			Password      string
			AdminUser     string
			AdminPassword string
			Name          string
			DisableTLS    bool
		}

		Email struct {
			Backend        string // console | smtp | sendgrid
			SendgridApiKey string
			SMTPHost       string
			SMTPPort       int
			SMTPUser       string
			SMTPPassword   string
		}

		Admin struct {
			Username         string
			PasswordHash     string // bcrypt, see `admin hashpassword`
			OTP              string // optional second code
			MaxLoginAttempts int
			LockoutDuration  time.Duration
		}

		Submission struct {
			CodeTTL         time.Duration
			MaxCodeAttempts int
			Cooldown        time.Duration
		}

		Report struct {
			CacheTTL time.Duration
		}

		AccountCodeTTL            time.Duration
		AccountMaxCodeAttempts    int
		PasswordResetTimeoutDelta time.Duration
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (c *Config) SetDefaultFromEmail(addr string) {
	c.defaultFromEmail = addr
}

// DatabaseAddress returns the database "host:port".
func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
}

// RollbarEnabled reports whether errors should be sent to Rollbar: never in debug or without a token.
func (c *Config) RollbarEnabled() bool {
	return !c.Debug && c.RollbarToken != ""
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Abia Schools Portal")
	v.SetDefault("secretKey", "x4!w9k$2zq-dev-only-0e7c(d9r=l3m8&t1p5h^v6b")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.sessionName", "abia_session")
	v.SetDefault("server.sessionMaxAge", 12*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "abia")
	v.SetDefault("database.password", "abia")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.name", "abia")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("email.backend", "console")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.smtpHost", "smtp.gmail.com")
	v.SetDefault("email.smtpPort", 465)
	v.SetDefault("email.smtpUser", "")
	v.SetDefault("email.smtpPassword", "")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.passwordHash", "")
	v.SetDefault("admin.otp", "")
	v.SetDefault("admin.maxLoginAttempts", 5)
	v.SetDefault("admin.lockoutDuration", 15*time.Minute)

	v.SetDefault("submission.codeTTL", 10*time.Minute)
	v.SetDefault("submission.maxCodeAttempts", 5)
	v.SetDefault("submission.cooldown", 120*time.Second)

	v.SetDefault("report.cacheTTL", 30*time.Second)

	v.SetDefault("accountCodeTTL", 30*time.Minute)
	v.SetDefault("accountMaxCodeAttempts", 5)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
}

// NewConfig loads the configuration for the current ENV (DEV by default, TEST, QA or PROD).
// Values come from defaults, then an optional config/.env.<env> file, then environment variables
// prefixed with the env name, e.g. PROD_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "QA", "PROD":
		v.SetDefault("debug", false)
		v.SetDefault("email.backend", "smtp")
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	conf.Env = env
	conf.TestMode = v.GetBool("testMode")
	conf.defaultFromEmail = v.GetString("defaultFromEmail")
	return conf
}
