package main

import (
	"os"
	"strings"
)

// Config carries everything the process reads from the environment. It is
// loaded once in main and passed down; nothing else touches os.Getenv for
// runtime behavior.
type Config struct {
	Addr        string // LISTEN_ADDR
	DSN         string // DB_DSN (postgres)
	JWTSecret   string // JWT_SECRET
	LoginDomain string // LOGIN_DOMAIN, appended to usernames to form the login identifier
	AnexoBase   string // ANEXO_BASE, directory for stored scans
	AutoMigrate bool   // DB_AUTO_MIGRATE
}

func LoadConfig() Config {
	return Config{
		Addr:        getEnv("LISTEN_ADDR", ":8081"),
		DSN:         os.Getenv("DB_DSN"),
		JWTSecret:   getEnv("JWT_SECRET", "dev-insecure-secret-change"),
		LoginDomain: getEnv("LOGIN_DOMAIN", "salc.eb.mil.br"),
		AnexoBase:   getEnv("ANEXO_BASE", "anexos"),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := strings.ToLower(os.Getenv(key))
	switch v {
	case "":
		return fallback
	case "false", "0", "no":
		return false
	}
	return true
}
