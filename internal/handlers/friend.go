package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/models"
	"github.com/beaconhq/beacon/internal/services"
)

type FriendHandler struct {
	friendService services.FriendServiceInterface
}

func NewFriendHandler(friendService services.FriendServiceInterface) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

type SendRequestRequest struct {
	ToUserID   string `json:"to_user_id"`
	ToUserName string `json:"to_user_name"`
}

type FriendListResponse struct {
	Friends  []models.Friend        `json:"friends,omitempty"`
	Requests []models.FriendRequest `json:"requests,omitempty"`
	Sent     []models.FriendRequest `json:"sent,omitempty"`
	Message  string                 `json:"message,omitempty"`
}

type UserSearchResponse struct {
	Users []models.UserSearchResult `json:"users"`
}

func (h *FriendHandler) Search(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	query := r.URL.Query().Get("q")
	if len(strings.TrimSpace(query)) < 2 {
		writeJSON(w, http.StatusOK, UserSearchResponse{Users: []models.UserSearchResult{}})
		return
	}

	users, err := h.friendService.SearchUsers(r.Context(), user.ID, query)
	if err != nil {
		log.Printf("Error searching users: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UserSearchResponse{Users: users})
}

func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req SendRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	toUserID, err := uuid.Parse(req.ToUserID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	_, err = h.friendService.SendRequest(r.Context(), user.ID, user.DisplayName, toUserID, req.ToUserName)
	if errors.Is(err, services.ErrCannotFriendSelf) {
		writeError(w, http.StatusBadRequest, "Cannot send friend request to yourself")
		return
	}
	if errors.Is(err, services.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if errors.Is(err, services.ErrRequestExists) {
		writeError(w, http.StatusConflict, "Friend request already exists")
		return
	}
	if err != nil {
		log.Printf("Error sending friend request: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, FriendListResponse{Message: "Friend request sent"})
}

func (h *FriendHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	requestID, err := parseIDPathValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	err = h.friendService.AcceptRequest(r.Context(), user.ID, requestID)
	if errors.Is(err, services.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, "Friend request not found")
		return
	}
	if errors.Is(err, services.ErrNotRequestRecipient) {
		writeError(w, http.StatusForbidden, "Only the recipient can accept this request")
		return
	}
	if errors.Is(err, services.ErrRequestAlreadyResolved) {
		writeError(w, http.StatusBadRequest, "Request is not pending")
		return
	}
	if err != nil {
		log.Printf("Error accepting friend request: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend request accepted"})
}

func (h *FriendHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	requestID, err := parseIDPathValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request ID")
		return
	}

	err = h.friendService.RejectRequest(r.Context(), user.ID, requestID)
	if errors.Is(err, services.ErrRequestNotFound) {
		writeError(w, http.StatusNotFound, "Friend request not found")
		return
	}
	if errors.Is(err, services.ErrNotRequestRecipient) {
		writeError(w, http.StatusForbidden, "Only the recipient can reject this request")
		return
	}
	if errors.Is(err, services.ErrRequestAlreadyResolved) {
		writeError(w, http.StatusBadRequest, "Request is not pending")
		return
	}
	if err != nil {
		log.Printf("Error rejecting friend request: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend request rejected"})
}

func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friendshipID, err := parseIDPathValue(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid friendship ID")
		return
	}

	err = h.friendService.RemoveFriend(r.Context(), user.ID, friendshipID)
	if errors.Is(err, services.ErrFriendshipNotFound) {
		writeError(w, http.StatusNotFound, "Friendship not found")
		return
	}
	if err != nil {
		log.Printf("Error removing friend: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{Message: "Friend removed"})
}

func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	friends, err := h.friendService.ListFriends(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error listing friends: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	requests, err := h.friendService.ListPendingRequests(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error listing pending requests: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	sent, err := h.friendService.ListSentRequests(r.Context(), user.ID)
	if err != nil {
		log.Printf("Error listing sent requests: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, FriendListResponse{
		Friends:  friends,
		Requests: requests,
		Sent:     sent,
	})
}

func parseIDPathValue(r *http.Request) (uuid.UUID, error) {
	id := r.PathValue("id")
	if id == "" {
		return uuid.Nil, errors.New("id not found in path")
	}
	return uuid.Parse(id)
}
