package main

import (
	"errors"
	"log/slog"

	"salc/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenDB connects to postgres. The handle is passed explicitly to everything
// that needs it; there is no package-level connection.
func OpenDB(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is not set; SALC requires a Postgres DSN in DB_DSN")
	}
	return gorm.Open(postgres.Open(dsn), &gorm.Config{})
}

// Migrate runs AutoMigrate model by model so a failure on one doesn't block
// the others, then installs the database-side pieces AutoMigrate can't
// express: the trigger that owns saldodisponivel and its CHECK constraint.
func Migrate(db *gorm.DB) {
	if err := db.AutoMigrate(&models.Role{}); err != nil {
		slog.Warn("migration warning (roles)", "err", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		slog.Warn("migration warning (users)", "err", err)
	}
	if err := db.AutoMigrate(&models.RefreshToken{}); err != nil {
		slog.Warn("migration warning (refresh_tokens)", "err", err)
	}
	if err := db.AutoMigrate(&models.NotaCredito{}); err != nil {
		slog.Warn("migration warning (notas_credito)", "err", err)
	}
	if err := db.AutoMigrate(&models.Anexo{}); err != nil {
		slog.Warn("migration warning (anexos)", "err", err)
	}
	if err := ensureSaldoTrigger(db); err != nil {
		slog.Warn("ensuring saldo trigger failed", "err", err)
	}
	if err := ensureSaldoCheck(db); err != nil {
		slog.Warn("ensuring saldo check constraint failed", "err", err)
	}
}

// ensureSaldoTrigger installs the BEFORE INSERT trigger that initializes
// saldodisponivel from valortotal. The application never writes the column;
// consumption (empenho) happens outside this surface and only ever lowers it.
func ensureSaldoTrigger(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE OR REPLACE FUNCTION notas_credito_init_saldo() RETURNS trigger AS $$
		BEGIN
			NEW.saldodisponivel := NEW.valortotal;
			RETURN NEW;
		END
		$$ LANGUAGE plpgsql`).Error; err != nil {
		return err
	}
	if err := db.Exec(`DROP TRIGGER IF EXISTS notas_credito_saldo_trg ON notas_credito`).Error; err != nil {
		return err
	}
	return db.Exec(`
		CREATE TRIGGER notas_credito_saldo_trg
		BEFORE INSERT ON notas_credito
		FOR EACH ROW EXECUTE FUNCTION notas_credito_init_saldo()`).Error
}

// ensureSaldoCheck adds the 0 <= saldodisponivel <= valortotal constraint if
// it is missing (postgres has no ADD CONSTRAINT IF NOT EXISTS).
func ensureSaldoCheck(db *gorm.DB) error {
	type cnt struct{ N int }
	var c cnt
	checkSQL := `SELECT count(*) AS n
		FROM pg_constraint ct
		JOIN pg_class rel ON rel.oid = ct.conrelid
		WHERE rel.relname = 'notas_credito' AND ct.conname = 'chk_notas_credito_saldo'`
	if err := db.Raw(checkSQL).Scan(&c).Error; err != nil {
		return err
	}
	if c.N == 0 {
		return db.Exec(`ALTER TABLE notas_credito
			ADD CONSTRAINT chk_notas_credito_saldo
			CHECK (saldodisponivel >= 0 AND saldodisponivel <= valortotal)`).Error
	}
	return nil
}

// Seed ensures the master roles and a first admin account exist so the
// dashboard is reachable right after a fresh migrate. Idempotent.
func Seed(db *gorm.DB) {
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		var cnt int64
		db.Model(&models.Role{}).Where("name = ?", r.Name).Count(&cnt)
		if cnt == 0 {
			db.Create(&r)
		}
	}

	var count int64
	db.Model(&models.User{}).Where("username = ?", "admin").Count(&count)
	if count == 0 {
		var role models.Role
		if err := db.Where("name = ?", "administrator").First(&role).Error; err != nil {
			slog.Warn("failed to find administrator role", "err", err)
		}
		rid := role.ID
		hashedPassword, _ := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		admin := models.User{Username: "admin", HashedPassword: hashedPassword, RoleID: &rid}
		db.Create(&admin)
		slog.Info("seeded admin user", "username", "admin", "password", "admin123")
	}
}
