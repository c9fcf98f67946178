package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func testConfig() Config {
	return Config{
		Addr:        ":0",
		JWTSecret:   "test-secret",
		LoginDomain: "salc.eb.mil.br",
		AnexoBase:   "anexos",
	}
}

func newTestApp(t *testing.T) (*App, sqlmock.Sqlmock, *gin.Engine, *sql.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	dialector := postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"})
	gormDB, err := gorm.Open(dialector, &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	app := NewApp(testConfig(), gormDB)
	r := gin.New()
	app.setupRoutes(r)
	return app, mock, r, mockDB
}

func bearerToken(t *testing.T, app *App, username string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"login":    loginIdentifier(app.cfg, username),
		"role":     "user",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	s, err := token.SignedString(app.jwtSecret)
	require.NoError(t, err)
	return "Bearer " + s
}

func doJSON(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginUnknownUserGenericMessage(t *testing.T) {
	_, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnError(gorm.ErrRecordNotFound)

	w := doJSON(r, http.MethodPost, "/login", "", gin.H{"username": "ninguem", "password": "whatever"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	// the body must not reveal whether the account exists
	assert.Equal(t, msgCredenciaisInvalidas, resp["error"])
	assert.NotContains(t, w.Body.String(), "record not found")
}

func TestLoginWrongPasswordGenericMessage(t *testing.T) {
	_, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	hpw, err := bcrypt.GenerateFromPassword([]byte("certa"), bcrypt.MinCost)
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at", "username", "hashed_password", "role_id"}).
		AddRow(1, time.Now(), time.Now(), nil, "sgt.silva", hpw, nil)
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(rows)

	w := doJSON(r, http.MethodPost, "/login", "", gin.H{"username": "sgt.silva", "password": "errada"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, msgCredenciaisInvalidas, resp["error"])
}

func TestLoginSuccessIssuesTokens(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	hpw, err := bcrypt.GenerateFromPassword([]byte("segredo1"), bcrypt.MinCost)
	require.NoError(t, err)
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at", "username", "hashed_password", "role_id"}).
		AddRow(1, time.Now(), time.Now(), nil, "sgt.silva", hpw, nil)
	mock.ExpectQuery(`SELECT \* FROM "users"`).WillReturnRows(rows)
	mock.ExpectQuery(`INSERT INTO "refresh_tokens"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	w := doJSON(r, http.MethodPost, "/login", "", gin.H{"username": "sgt.silva", "password": "segredo1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["token"])
	require.NotEmpty(t, resp["refresh_token"])

	// the access token carries the derived login identifier
	parsed, err := jwt.Parse(resp["token"], func(*jwt.Token) (interface{}, error) { return app.jwtSecret, nil })
	require.NoError(t, err)
	claims := parsed.Claims.(jwt.MapClaims)
	assert.Equal(t, "sgt.silva@salc.eb.mil.br", claims["login"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNotasRequireAuth(t *testing.T) {
	_, _, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	w := doJSON(r, http.MethodGet, "/notas", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodGet, "/notas", "Bearer not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeHandler(t *testing.T) {
	app, _, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	w := doJSON(r, http.MethodGet, "/me", bearerToken(t, app, "sgt.silva"), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "sgt.silva", resp["username"])
	assert.Equal(t, "sgt.silva@salc.eb.mil.br", resp["login"])
}

func TestListNotasEmpty(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "notas_credito"`).
		WillReturnRows(sqlmock.NewRows(notaColumns()))

	w := doJSON(r, http.MethodGet, "/notas", bearerToken(t, app, "sgt.silva"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	// empty table renders as [], never null
	assert.Equal(t, "[]", w.Body.String())
}

func TestListNotasFailure(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "notas_credito"`).
		WillReturnError(errors.New("connection refused"))

	w := doJSON(r, http.MethodGet, "/notas", bearerToken(t, app, "sgt.silva"), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "falha ao carregar notas de crédito")
	assert.NotContains(t, w.Body.String(), "connection refused")
}

func validNotaPayload() gin.H {
	return gin.H{
		"numeronc":        "2025NC000123",
		"datarecepcao":    "2025-03-10",
		"ug_gestora":      "160222",
		"ug_favorecida":   "160223",
		"ptres":           "001001",
		"naturezadespesa": "339030",
		"fonterecurso":    "0100",
		"pi":              "",
		"valortotal":      "1500,50",
		"datavalidade":    "",
	}
}

func TestCreateNota(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`INSERT INTO "notas_credito"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	w := doJSON(r, http.MethodPost, "/notas", bearerToken(t, app, "sgt.silva"), validNotaPayload())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]uint
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint(42), resp["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotaValidationSkipsStore(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	payload := validNotaPayload()
	payload["numeronc"] = "NC12"
	payload["valortotal"] = "0"

	w := doJSON(r, http.MethodPost, "/notas", bearerToken(t, app, "sgt.silva"), payload)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp struct {
		Errors map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Errors, "numeronc")
	assert.Contains(t, resp.Errors, "valortotal")
	// no insert may run when validation fails
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNotaDuplicate(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`INSERT INTO "notas_credito"`).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "idx_notas_credito_numeronc"`))

	w := doJSON(r, http.MethodPost, "/notas", bearerToken(t, app, "sgt.silva"), validNotaPayload())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), ErrNumeroDuplicado.Error())
}

func TestGetAnexoRejectsNonNumericID(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	// a crafted id must be refused before any SQL runs, never spliced into
	// the WHERE clause
	w := doJSON(r, http.MethodGet, "/anexos/1%20OR%201=1--", bearerToken(t, app, "sgt.silva"), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnexoByID(t *testing.T) {
	app, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	rows := sqlmock.NewRows([]string{"id", "nota_id", "nome_arquivo", "nome_armazenado", "content_type", "tamanho_bytes"}).
		AddRow(5, 1, "2025NC000123.png", "abc.png", "image/png", 1234)
	mock.ExpectQuery(`SELECT \* FROM "anexos"`).WillReturnRows(rows)

	w := doJSON(r, http.MethodGet, "/anexos/5", bearerToken(t, app, "sgt.silva"), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "2025NC000123.png")
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	_, mock, r, mockDB := newTestApp(t)
	defer mockDB.Close()

	mock.ExpectQuery(`SELECT \* FROM "refresh_tokens"`).WillReturnError(gorm.ErrRecordNotFound)

	w := doJSON(r, http.MethodPost, "/refresh", "", gin.H{"refresh_token": "deadbeef"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
