package http

import "strconv"

type StatusCode int

const (
	StatusContinue                    StatusCode = 100
	StatusOK                          StatusCode = 200
	StatusCreated                     StatusCode = 201
	StatusAccepted                    StatusCode = 202
	StatusNoContent                   StatusCode = 204
	StatusMovedPermanently            StatusCode = 301
	StatusFound                       StatusCode = 302
	StatusNotModified                 StatusCode = 304
	StatusBadRequest                  StatusCode = 400
	StatusUnauthorized                StatusCode = 401
	StatusForbidden                   StatusCode = 403
	StatusNotFound                    StatusCode = 404
	StatusMethodNotAllowed            StatusCode = 405
	StatusRequestTimeout              StatusCode = 408
	StatusContentTooLarge             StatusCode = 413
	StatusRequestHeaderFieldsTooLarge StatusCode = 431
	StatusInternalServerError         StatusCode = 500
	StatusNotImplemented              StatusCode = 501
	StatusServiceUnavailable          StatusCode = 503
	StatusHTTPVersionNotSupported     StatusCode = 505
)

var reasonPhrases = map[StatusCode]string{
	StatusContinue:                    "Continue",
	StatusOK:                          "OK",
	StatusCreated:                     "Created",
	StatusAccepted:                    "Accepted",
	StatusNoContent:                   "No Content",
	StatusMovedPermanently:            "Moved Permanently",
	StatusFound:                       "Found",
	StatusNotModified:                 "Not Modified",
	StatusBadRequest:                  "Bad Request",
	StatusUnauthorized:                "Unauthorized",
	StatusForbidden:                   "Forbidden",
	StatusNotFound:                    "Not Found",
	StatusMethodNotAllowed:            "Method Not Allowed",
	StatusRequestTimeout:              "Request Timeout",
	StatusContentTooLarge:             "Content Too Large",
	StatusRequestHeaderFieldsTooLarge: "Request Header Fields Too Large",
	StatusInternalServerError:         "Internal Server Error",
	StatusNotImplemented:              "Not Implemented",
	StatusServiceUnavailable:          "Service Unavailable",
	StatusHTTPVersionNotSupported:     "HTTP Version Not Supported",
}

// Reason returns the standard reason phrase, or "" for unknown codes.
func (sc StatusCode) Reason() string {
	return reasonPhrases[sc]
}

// statusLine formats the response status line. Codes are not range checked.
func statusLine(sc StatusCode) []byte {
	return []byte("HTTP/1.1 " + strconv.Itoa(int(sc)) + " " + sc.Reason() + "\r\n")
}
