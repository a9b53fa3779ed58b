// Command add-admin creates an administrator account. Departments, HODs and
// Coordinators are created through the API by an admin, so the first admin
// has to come from here.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"deptfunds/internal/cli"
	"deptfunds/internal/config"
	applog "deptfunds/internal/log"
	"deptfunds/internal/services"
)

func main() {
	cli.LoadEnvFile()

	name := flag.String("name", envOr("ADMIN_NAME", "Administrator"), "display name")
	email := flag.String("email", os.Getenv("ADMIN_EMAIL"), "login email (or ADMIN_EMAIL)")
	password := flag.String("password", os.Getenv("ADMIN_PASSWORD"), "login password (or ADMIN_PASSWORD)")
	flag.Parse()

	cfg := config.Load()
	logger := cli.SetupLogger(cfg, applog.ComponentAuth)

	if *email == "" || *password == "" {
		logger.Error("Both -email and -password are required")
		flag.Usage()
		os.Exit(2)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, err := services.NewDepartmentService(repo).CreateAdmin(ctx, *name, *email, *password)
	if err != nil {
		logger.Error("Failed to create admin", "error", err, "email", *email)
		os.Exit(1)
	}
	logger.Info("Admin created", applog.FieldUserID, u.ID, "email", u.Email, "path", cfg.SQLiteDBPath)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
