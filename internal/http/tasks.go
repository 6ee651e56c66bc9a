package http

import (
	"context"

	"github.com/lieberdev/hostd/internal/task"
)

// The functions below expose the Response operations as tasks. Each yields
// the same *Response so steps can be chained with task.AndThen or task.Chain.

func SetStatus(sc StatusCode, res *Response) task.Task[*Response] {
	return func(context.Context) (*Response, error) {
		return res, res.SetStatus(sc)
	}
}

func SetHeaders(headers []Header, res *Response) task.Task[*Response] {
	return func(context.Context) (*Response, error) {
		return res, res.SetHeaders(headers)
	}
}

func SetBody(body []byte, res *Response) task.Task[*Response] {
	return func(context.Context) (*Response, error) {
		return res, res.SetBody(body)
	}
}

func EndResponse(res *Response) task.Task[*Response] {
	return func(context.Context) (*Response, error) {
		return res, res.End()
	}
}

// Respond sets status and headers, writes body and ends the response.
func Respond(sc StatusCode, headers []Header, body []byte, res *Response) task.Task[*Response] {
	return task.Chain(SetStatus(sc, res),
		func(r *Response) task.Task[*Response] { return SetHeaders(headers, r) },
		func(r *Response) task.Task[*Response] { return SetBody(body, r) },
		EndResponse,
	)
}
