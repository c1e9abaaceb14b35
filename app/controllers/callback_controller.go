package controllers

import (
	"net/http"

	"github.com/shashiranjanraj/upbridge/pkg/callback"
	"github.com/shashiranjanraj/upbridge/pkg/response"
	"github.com/shashiranjanraj/upbridge/pkg/uploader"
)

// CallbackInfo describes one engine callback.
type CallbackInfo struct {
	Option   string `json:"option"`
	Event    string `json:"event"`
	Mode     string `json:"mode"`
	Handlers int    `json:"handlers"`
}

type CallbackController struct {
	up *uploader.Uploader
}

func NewCallbackController(up *uploader.Uploader) *CallbackController {
	return &CallbackController{up: up}
}

// Index handles GET /api/callbacks: the catalogue with each event's mode and
// how many handlers the server has attached.
func (c *CallbackController) Index(w http.ResponseWriter, _ *http.Request) {
	set := c.up.Callbacks()
	out := make([]CallbackInfo, 0, len(callback.All))
	for _, name := range callback.All {
		reg := set.Registry(name)
		out = append(out, CallbackInfo{
			Option:   name,
			Event:    callback.EventName(name),
			Mode:     reg.Mode().String(),
			Handlers: reg.Len(),
		})
	}
	response.Success(w, out)
}
