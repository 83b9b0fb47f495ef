package voice

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	agentService "github.com/ewanfisher/voxmail/backend/internal/service/agent"
	"github.com/ewanfisher/voxmail/backend/internal/service/speech"
)

// Handler serves voice turns over a websocket: audio in, transcript
// plus engine response out.
type Handler struct {
	engine   *agentService.Service
	speech   speech.Transcriber
	upgrader websocket.Upgrader
}

// New creates the voice handler.
func New(engine *agentService.Service, transcriber speech.Transcriber) *Handler {
	return &Handler{
		engine: engine,
		speech: transcriber,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/voice/{userID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type string          `json:"type"` // "audio" or "text"
	Data json.RawMessage `json:"data"`
}

// AudioMessage is one complete voice clip.
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
}

// TextMessage is a typed turn sent over the same socket.
type TextMessage struct {
	Text string `json:"text"`
}

type outboundMessage struct {
	Type       string `json:"type"` // "transcript", "reply", "error"
	Transcript string `json:"transcript,omitempty"`
	Data       string `json:"data,omitempty"`
	Speech     string `json:"speech,omitempty"`
	Action     string `json:"action,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("[ws] voice channel open for user=%s", userID)

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for user=%s: %v", userID, err)
			}
			return
		}

		text, ok := h.turnText(r, conn, inbound)
		if !ok {
			continue
		}

		result, err := h.engine.HandleTurn(r.Context(), userID, text)
		if err != nil {
			h.send(conn, outboundMessage{Type: "error", Error: err.Error()})
			continue
		}

		h.send(conn, outboundMessage{
			Type:       "reply",
			Transcript: result.Transcript,
			Data:       result.Response.Data,
			Speech:     result.Response.Speech,
			Action:     string(result.Action),
		})
	}
}

// turnText extracts the utterance for a turn, transcribing audio
// payloads through the speech collaborator.
func (h *Handler) turnText(r *http.Request, conn *websocket.Conn, inbound inboundMessage) (string, bool) {
	switch inbound.Type {
	case "audio":
		var audio AudioMessage
		if err := json.Unmarshal(inbound.Data, &audio); err != nil {
			h.send(conn, outboundMessage{Type: "error", Error: "invalid audio payload"})
			return "", false
		}

		transcript, err := h.speech.Transcribe(r.Context(), audio.AudioData, audio.Format)
		if err != nil {
			h.send(conn, outboundMessage{Type: "error", Error: "transcription failed: " + err.Error()})
			return "", false
		}
		if transcript == "" {
			h.send(conn, outboundMessage{Type: "error", Error: "could not transcribe, try again"})
			return "", false
		}

		h.send(conn, outboundMessage{Type: "transcript", Transcript: transcript})
		return transcript, true

	case "text":
		var text TextMessage
		if err := json.Unmarshal(inbound.Data, &text); err != nil || text.Text == "" {
			h.send(conn, outboundMessage{Type: "error", Error: "invalid text payload"})
			return "", false
		}
		return text.Text, true

	default:
		h.send(conn, outboundMessage{Type: "error", Error: "unknown message type"})
		return "", false
	}
}

func (h *Handler) send(conn *websocket.Conn, msg outboundMessage) {
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[ws] write failed: %v", err)
	}
}
