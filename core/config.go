package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		RollbarToken     string
		SendgridApiKey   string
		ContactInbox     string
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Payment  PaymentConfig
		Storage  StorageConfig
		Redis    RedisConfig
	}

	ServerConfig struct {
		Address         string
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
		JWTIssuer       string
		JWTSecret       string
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite3
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		MaxOpenConns  int
		MaxIdleConns  int
	}

	PaymentConfig struct {
		Provider          string // midtrans | cashfree
		Currency          string
		ReturnURL         string
		MidtransServerKey string
		Production        bool
		GatewayURL        string
		ClientID          string
		ClientSecret      string
		APIVersion        string
		SweepSchedule     string
		OrderTTL          time.Duration
	}

	StorageConfig struct {
		Endpoint        string
		AccessKeyID     string
		AccessKeySecret string
		Bucket          string
		LocalDir        string
		SignedURLExpiry time.Duration
	}

	RedisConfig struct {
		Addr string
	}
)

func (c DatabaseConfig) Address() string {
	if c.Port == "" {
		return c.Host
	}
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

// NewConfig reads the configuration from the environment.
// Variables are prefixed with the current ENV, e.g. DEV_DATABASE_NAME.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Darasa")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("contactInbox", "contact@localhost")

	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.debugHost", "localhost:4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtIssuer", "")

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "darasa")
	v.SetDefault("database.user", "darasa")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)

	v.SetDefault("payment.provider", "midtrans")
	v.SetDefault("payment.currency", "IDR")
	v.SetDefault("payment.returnURL", "http://localhost:3000/payments/verify?order_id={order_id}")
	v.SetDefault("payment.gatewayURL", "https://sandbox.cashfree.com/pg")
	v.SetDefault("payment.apiVersion", "2023-08-01")
	v.SetDefault("payment.sweepSchedule", "@every 5m")
	v.SetDefault("payment.orderTTL", 24*time.Hour)

	v.SetDefault("storage.localDir", "media")
	v.SetDefault("storage.signedURLExpiry", 15*time.Minute)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

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

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		ContactInbox:     v.GetString("contactInbox"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Address:         v.GetString("server.address"),
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			JWTIssuer:       v.GetString("server.jwtIssuer"),
			JWTSecret:       v.GetString("server.jwtSecret"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
			MaxOpenConns:  v.GetInt("database.maxOpenConns"),
			MaxIdleConns:  v.GetInt("database.maxIdleConns"),
		},
		Payment: PaymentConfig{
			Provider:          strings.ToLower(v.GetString("payment.provider")),
			Currency:          v.GetString("payment.currency"),
			ReturnURL:         v.GetString("payment.returnURL"),
			MidtransServerKey: v.GetString("payment.midtransServerKey"),
			Production:        v.GetBool("payment.production"),
			GatewayURL:        v.GetString("payment.gatewayURL"),
			ClientID:          v.GetString("payment.clientID"),
			ClientSecret:      v.GetString("payment.clientSecret"),
			APIVersion:        v.GetString("payment.apiVersion"),
			SweepSchedule:     v.GetString("payment.sweepSchedule"),
			OrderTTL:          v.GetDuration("payment.orderTTL"),
		},
		Storage: StorageConfig{
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.accessKeyID"),
			AccessKeySecret: v.GetString("storage.accessKeySecret"),
			Bucket:          v.GetString("storage.bucket"),
			LocalDir:        v.GetString("storage.localDir"),
			SignedURLExpiry: v.GetDuration("storage.signedURLExpiry"),
		},
		Redis: RedisConfig{
			Addr: v.GetString("redis.addr"),
		},
	}
	if conf.Server.JWTSecret == "" {
		conf.Server.JWTSecret = conf.SecretKey
	}
	return conf
}
