package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Success(c, "ok", gin.H{"id": 1})
	require.Equal(t, http.StatusOK, w.Code)
	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 0, body.Code)
	assert.Equal(t, "ok", body.Msg)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	AbortWithStatus(c, http.StatusNotFound, 6, "Record not found", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, c.IsAborted())
	assert.JSONEq(t, `{"code":6,"msg":"Record not found"}`, w.Body.String())
}
