package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-net-api/internal/dto"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

type bindingServiceMock struct {
	bindErr    error
	releaseErr error
	bindReq    dto.BindRequest
	releasedID string
	releaseReq dto.ReleaseRequest
}

func (m *bindingServiceMock) Bind(_ context.Context, req dto.BindRequest) error {
	m.bindReq = req
	return m.bindErr
}

func (m *bindingServiceMock) Release(_ context.Context, accountID string, req dto.ReleaseRequest) error {
	m.releasedID = accountID
	m.releaseReq = req
	return m.releaseErr
}

func TestBindingHandlerBind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bindingServiceMock{}
	handler := NewBindingHandler(mock, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.BindRequest{AccountID: "ACC-1", StudentID: "S1", Remark: "front desk"})
	req, _ := http.NewRequest(http.MethodPost, "/bindings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Bind(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ACC-1", mock.bindReq.AccountID)
	assert.Equal(t, "S1", mock.bindReq.StudentID)
}

func TestBindingHandlerBindInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewBindingHandler(&bindingServiceMock{}, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/bindings", bytes.NewReader([]byte(`{"accountId":"ACC-1"}`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Bind(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBindingHandlerBindConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bindingServiceMock{bindErr: appErrors.Clone(appErrors.ErrInvalidState, "account is not in the free pool")}
	handler := NewBindingHandler(mock, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.BindRequest{AccountID: "ACC-1", StudentID: "S1"})
	req, _ := http.NewRequest(http.MethodPost, "/bindings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Bind(c)
	assert.Equal(t, appErrors.ErrInvalidState.Status, w.Code)
}

func TestBindingHandlerReleaseEmptyBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bindingServiceMock{}
	handler := NewBindingHandler(mock, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodDelete, "/bindings/ACC-9", http.NoBody)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "accountId", Value: "ACC-9"}}

	handler.Release(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ACC-9", mock.releasedID)
}

func TestBindingHandlerReleaseWithRemark(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mock := &bindingServiceMock{}
	handler := NewBindingHandler(mock, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(dto.ReleaseRequest{Remark: "graduated"})
	req, _ := http.NewRequest(http.MethodDelete, "/bindings/ACC-9", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "accountId", Value: "ACC-9"}}

	handler.Release(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "graduated", mock.releaseReq.Remark)
}
