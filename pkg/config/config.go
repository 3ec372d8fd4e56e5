package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUrl                string
	RedisURL             string
	RedisPassword        string
	GoogleClientID       string
	GoogleClientSecret   string
	JWTSecret            string
	PaystackSecret       string
	PaystackChannels     []string
	MonnifySecret        string
	MonnifyAPIKey        string
	MonnifyContractCode  string
	VTPassAPIKey         string
	VTPassSecret         string
	ReloadlyClientID     string
	ReloadlyClientSecret string
	ProviderTimeout      time.Duration
	MinTransactionAmount int64
	MaxActiveKeys        int
	Port                 string
	Host                 string
	Env                  string
	AllowedOrigins       []string
}

func LoadConfig() Config {
	godotenv.Load()

	paystackChannels := strings.Split(getEnv("PAYSTACK_CHANNELS"), ",")

	minAmountStr := getEnv("MIN_TRANSACTION_AMOUNT")
	minAmount, err := strconv.ParseInt(minAmountStr, 10, 64)
	if err != nil {
		panic("MIN_TRANSACTION_AMOUNT must be a valid integer")
	}

	maxKeys, err := strconv.Atoi(getEnvDefault("MAX_ACTIVE_KEYS", "5"))
	if err != nil {
		panic("MAX_ACTIVE_KEYS must be a valid integer")
	}

	timeoutSecs, err := strconv.Atoi(getEnvDefault("PROVIDER_TIMEOUT_SECONDS", "30"))
	if err != nil {
		panic("PROVIDER_TIMEOUT_SECONDS must be a valid integer")
	}

	return Config{
		DBUrl:                getEnv("DATABASE_URL"),
		RedisURL:             getEnv("REDIS_URL"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		GoogleClientID:       getEnv("GOOGLE_CLIENT_ID"),
		GoogleClientSecret:   getEnv("GOOGLE_CLIENT_SECRET"),
		JWTSecret:            getEnv("JWT_SECRET"),
		PaystackSecret:       getEnv("PAYSTACK_SECRET"),
		PaystackChannels:     paystackChannels,
		MonnifySecret:        getEnv("MONNIFY_SECRET"),
		MonnifyAPIKey:        getEnv("MONNIFY_API_KEY"),
		MonnifyContractCode:  getEnv("MONNIFY_CONTRACT_CODE"),
		VTPassAPIKey:         getEnv("VTPASS_API_KEY"),
		VTPassSecret:         getEnv("VTPASS_SECRET"),
		ReloadlyClientID:     getEnv("RELOADLY_CLIENT_ID"),
		ReloadlyClientSecret: getEnv("RELOADLY_CLIENT_SECRET"),
		ProviderTimeout:      time.Duration(timeoutSecs) * time.Second,
		MinTransactionAmount: minAmount,
		MaxActiveKeys:        maxKeys,
		Port:                 getEnv("PORT"),
		Host:                 getEnv("HOST"),
		Env:                  getEnv("ENV"),
		AllowedOrigins:       strings.Split(getEnv("ALLOWED_ORIGINS"), ","),
	}
}

func getEnv(key string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	panic(fmt.Sprintf("%s is required", key))
}

func getEnvDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
