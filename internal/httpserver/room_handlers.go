package httpserver

import (
	"encoding/json"
	"net/http"

	"chatclient/internal/domain"
	"chatclient/internal/service"
)

type memberAddRequest struct {
	UserID int64 `json:"user_id"`
}

func handleListRooms(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rooms, err := store.ListRooms(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rooms)
	}
}

func handleCreateRoom(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req domain.RoomCreateInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		room, err := store.CreateRoom(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, room)
	}
}

func handleGetRoom(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		snap, found := store.Room(roomID)
		if !found {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not loaded"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleOpenRoom(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		snap, err := store.OpenRoom(r.Context(), roomID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleListRoomMessages(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		msgs := store.RoomMessages(roomID)
		if msgs == nil {
			msgs = []domain.GroupMessage{}
		}
		writeJSON(w, http.StatusOK, msgs)
	}
}

func handleSendRoomMessage(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		var req messageCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		msg, err := store.SendGroup(r.Context(), roomID, req.Content)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	}
}

func handleAddRoomMember(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid room id"})
			return
		}
		var req memberAddRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		if err := store.AddRoomMember(r.Context(), roomID, req.UserID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}

func handleRemoveRoomMember(store *service.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID, ok := pathID(r, "roomID")
		userID, okUser := pathID(r, "userID")
		if !ok || !okUser {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
			return
		}
		if err := store.RemoveRoomMember(r.Context(), roomID, userID); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
	}
}
