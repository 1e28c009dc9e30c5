package handlers

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"foxgem/common"
)

// maxBodyBytes ограничение размера тела запроса
const maxBodyBytes = 1 << 20

// flexInt целое число из JSON: принимает 100, 100.0 и "100".
// Set == false, если поле не передано или равно null.
type flexInt struct {
	Value int64
	Set   bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return fmt.Errorf("некорректная строка %s", s)
		}
		s = strings.TrimSpace(unquoted)
		if s == "" {
			return nil
		}
	}

	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		f.Value, f.Set = v, true
		return nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt64/2 {
		return fmt.Errorf("ожидалось целое число, получено %s", s)
	}
	f.Value, f.Set = int64(v), true
	return nil
}

// decodeJSON читает тело запроса в v. Ошибки разбора - ошибки валидации.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return common.ValidationError("некорректный JSON: %v", err)
	}
	return nil
}

// writeJSON пишет ответ в JSON
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// errorResponse конверт ошибки
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// writeError пишет ошибку со статусом по ее коду
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, common.HTTPStatus(err), errorResponse{
		Success: false,
		Error:   common.PublicMessage(err),
		Code:    common.ErrorCode(err),
	})
}

// parseID разбирает положительный идентификатор пользователя из пути или query
func parseID(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, common.ValidationError("не указан идентификатор пользователя")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ValidationError("некорректный идентификатор пользователя: %q", raw)
	}
	return id, nil
}
