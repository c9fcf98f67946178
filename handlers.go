package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"salc/models"
	"salc/pkg/ocr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const msgCredenciaisInvalidas = "usuário ou senha inválidos"

// App holds the explicitly constructed dependencies of the HTTP surface.
// Everything is injected in main; handlers never reach for globals.
type App struct {
	cfg       Config
	db        *gorm.DB
	notas     *NotaStore
	jwtSecret []byte
}

func NewApp(cfg Config, db *gorm.DB) *App {
	return &App{
		cfg:       cfg,
		db:        db,
		notas:     NewNotaStore(db),
		jwtSecret: []byte(cfg.JWTSecret),
	}
}

func (a *App) setupRoutes(r *gin.Engine) {
	r.POST("/login", a.loginHandler)
	r.POST("/refresh", a.refreshHandler)
	r.POST("/logout", a.logoutHandler)
	authGroup := r.Group("")
	authGroup.Use(a.jwtAuthMiddleware())
	authGroup.GET("/me", a.meHandler)
	authGroup.GET("/notas", a.listNotasHandler)
	authGroup.POST("/notas", a.createNotaHandler)
	authGroup.POST("/notas/:id/anexos", a.uploadAnexoHandler)
	authGroup.GET("/anexos", a.listAnexosHandler)
	authGroup.GET("/anexos/:id", a.getAnexoHandler)
}

// jwtAuthMiddleware gates every dashboard route. A missing, malformed or
// expired token all take the same 401 path; the client treats any of them as
// "not logged in" and redirects to the login screen.
func (a *App) jwtAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			c.Abort()
			return
		}
		tokenString := authHeader[7:]
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return a.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid claims"})
			c.Abort()
			return
		}
		username, _ := claims["username"].(string)
		login, _ := claims["login"].(string)
		role, _ := claims["role"].(string)
		c.Set("username", username)
		c.Set("login", login)
		if role != "" {
			c.Set("role", role)
		}
		c.Next()
	}
}

// meHandler exposes the authenticated identity: the display name is the
// local part of the derived login identifier.
func (a *App) meHandler(c *gin.Context) {
	login := c.GetString("login")
	if login == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "context missing login"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": displayName(login), "login": login})
}

func (a *App) loginHandler(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	user, err := Authenticate(a.db, req.Username, req.Password)
	if err != nil {
		// detailed cause is for operators only; the response never reveals
		// whether the account exists
		slog.Warn("login recusado", "username", req.Username, "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": msgCredenciaisInvalidas})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := a.db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	login := loginIdentifier(a.cfg, user.Username)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"login":    login,
		"role":     roleName,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(a.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	refreshToken, err := a.createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "login efetuado", "token": tokenString, "refresh_token": refreshToken})
}

// createAndStoreRefreshToken generates a random refresh token, stores its hash with expiry and returns the raw token string
func (a *App) createAndStoreRefreshToken(userID uint) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	rt := models.RefreshToken{UserID: userID, TokenHash: th, ExpiresAt: time.Now().Add(30 * 24 * time.Hour)}
	if err := a.db.Create(&rt).Error; err != nil {
		return "", err
	}
	return token, nil
}

func (a *App) findRefreshTokenByRaw(token string) (*models.RefreshToken, error) {
	h := sha256.Sum256([]byte(token))
	th := hex.EncodeToString(h[:])
	var rt models.RefreshToken
	if err := a.db.Where("token_hash = ?", th).First(&rt).Error; err != nil {
		return nil, err
	}
	return &rt, nil
}

// refreshHandler exchanges a refresh token for a new access token and rotates the refresh token
func (a *App) refreshHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := a.findRefreshTokenByRaw(req.RefreshToken)
	if err != nil || rt.Revoked || time.Now().After(rt.ExpiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		return
	}
	var user models.User
	if err := a.db.First(&user, rt.UserID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}
	roleName := ""
	if user.RoleID != nil {
		var r models.Role
		if err := a.db.First(&r, *user.RoleID).Error; err == nil {
			roleName = r.Name
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": user.Username,
		"login":    loginIdentifier(a.cfg, user.Username),
		"role":     roleName,
		"exp":      time.Now().Add(15 * time.Minute).Unix(),
	})
	tokenString, err := token.SignedString(a.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate token"})
		return
	}
	// rotate refresh token: revoke existing and create new one
	a.db.Model(&models.RefreshToken{}).Where("id = ?", rt.ID).Update("revoked", true)
	newRT, err := a.createAndStoreRefreshToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to rotate refresh token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tokenString, "refresh_token": newRT})
}

// logoutHandler revokes a refresh token (sign-out from the dashboard).
func (a *App) logoutHandler(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rt, err := a.findRefreshTokenByRaw(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "refresh token not found"})
		return
	}
	rt.Revoked = true
	if err := a.db.Save(rt).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to revoke token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "sessão encerrada"})
}

// listNotasHandler backs the dashboard table: the full row set ordered by
// reception date. An empty list is 200 with []; any store failure is a single
// error message and the client shows it instead of rows.
func (a *App) listNotasHandler(c *gin.Context) {
	notas, err := a.notas.List(c.Request.Context())
	if err != nil {
		slog.Error("falha ao listar notas", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "falha ao carregar notas de crédito"})
		return
	}
	c.JSON(http.StatusOK, notas)
}

// createNotaHandler validates and inserts exactly one nota. Validation fails
// fast with one message per field and no store call; a duplicate numeronc is
// 409 so the form keeps its values for correction.
func (a *App) createNotaHandler(c *gin.Context) {
	var form NotaForm
	if err := c.ShouldBindJSON(&form); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "corpo da requisição inválido"})
		return
	}
	if erros := form.Validate(); len(erros) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": erros})
		return
	}
	nova, err := form.Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := a.notas.Create(c.Request.Context(), nova)
	if err != nil {
		if errors.Is(err, ErrNumeroDuplicado) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		slog.Error("falha ao criar nota", "numeronc", nova.NumeroNC, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "falha ao salvar nota de crédito"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// uploadAnexoHandler attaches a scanned document to an existing nota. The
// scan is stored under a uuid name; OCR extraction of the printed total runs
// best-effort afterwards and never blocks the upload.
func (a *App) uploadAnexoHandler(c *gin.Context) {
	notaID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return
	}
	var nota models.NotaCredito
	if err := a.db.WithContext(c.Request.Context()).First(&nota, notaID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "nota de crédito não encontrada"})
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo ausente"})
		return
	}
	if file.Size > 5*1024*1024 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "arquivo muito grande (máx 5MB)"})
		return
	}
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(file.Filename))
	if err := os.MkdirAll(a.cfg.AnexoBase, 0755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mkdir failed"})
		return
	}
	fullPath := filepath.Join(a.cfg.AnexoBase, stored)
	if err := c.SaveUploadedFile(file, fullPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save failed"})
		return
	}
	nid := uint(notaID)
	anexo := models.Anexo{
		NotaID:         &nid,
		NomeArquivo:    file.Filename,
		NomeArmazenado: stored,
		ContentType:    file.Header.Get("Content-Type"),
		TamanhoBytes:   file.Size,
	}
	preencherOCR(&anexo, fullPath, &nota)
	if err := a.db.WithContext(c.Request.Context()).Create(&anexo).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db save failed"})
		return
	}
	c.JSON(http.StatusOK, anexo)
}

// preencherOCR runs amount extraction on an image scan and records the result
// on the anexo. Non-image files and extraction failures just mark the anexo
// for manual conferência.
func preencherOCR(anexo *models.Anexo, path string, nota *models.NotaCredito) {
	if !isImagemSuportada(path) {
		return
	}
	valor, conf, raw, err := ocr.ExtractValorFromImage(path)
	if err != nil {
		anexo.Failed = true
		anexo.FailedReason = err.Error()
		return
	}
	anexo.ValorOCR.Valid = true
	anexo.ValorOCR.Decimal = valor
	anexo.ConfiancaOCR = conf
	if nota != nil && !valor.Equal(nota.ValorTotal) {
		anexo.Divergente = true
		slog.Warn("valor OCR diverge da nota",
			"numeronc", nota.NumeroNC, "valortotal", nota.ValorTotal, "valor_ocr", valor, "raw", raw)
	}
}

func isImagemSuportada(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

// listAnexosHandler returns the most recent anexos, newest first.
func (a *App) listAnexosHandler(c *gin.Context) {
	var anexos []models.Anexo
	if err := a.db.WithContext(c.Request.Context()).
		Order("id desc").Limit(100).Find(&anexos).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, anexos)
}

func (a *App) getAnexoHandler(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id inválido"})
		return
	}
	var anexo models.Anexo
	if err := a.db.WithContext(c.Request.Context()).First(&anexo, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, anexo)
}
