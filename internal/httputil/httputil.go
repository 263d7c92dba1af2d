package httputil

import (
	"encoding/json"
	"net/http"
)

func WriteJSON(rw http.ResponseWriter, statusCode int, v interface{}) {
	rw.Header().Set("content-type", "application/json; charset=utf-8")
	rw.WriteHeader(statusCode)

	if err := json.NewEncoder(rw).Encode(v); err != nil {
		panic(err)
	}
}

func WriteError(rw http.ResponseWriter, statusCode int, message string) {
	WriteJSON(rw, statusCode, map[string]string{"error": message})
}

func NotFound(rw http.ResponseWriter, r *http.Request) {
	WriteError(rw, http.StatusNotFound, "not found")
}

func BadRequest(rw http.ResponseWriter, message string) {
	WriteError(rw, http.StatusBadRequest, message)
}
