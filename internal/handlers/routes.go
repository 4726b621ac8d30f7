package handlers

import "github.com/gin-gonic/gin"

// Handlers bundles every REST handler of the service.
type Handlers struct {
	Chat     *ChatHandler
	Group    *GroupHandler
	Message  *MessageHandler
	Status   *StatusHandler
	Presence *PresenceHandler
	Contact  *ContactHandler
}

// RegisterRoutes mounts the authenticated REST API on router.
func RegisterRoutes(router gin.IRouter, auth gin.HandlerFunc, h Handlers) {
	api := router.Group("", auth)

	api.GET("/chats", h.Chat.ListChats)
	api.GET("/chats/users", h.Chat.SearchUsers)
	api.POST("/chats/direct/:receiver_id", h.Chat.OpenDirectChat)
	api.DELETE("/chats/:chat_id", h.Chat.DeleteChat)

	api.GET("/chats/:chat_id/messages", h.Message.ListMessages)
	api.POST("/chats/:chat_id/messages", h.Message.PostMessage)
	api.POST("/chats/:chat_id/messages/:message_id/reactions", h.Message.React)
	api.DELETE("/chats/:chat_id/messages/:message_id", h.Message.DeleteMessage)
	api.POST("/chats/:chat_id/seen", h.Message.MarkSeen)

	api.POST("/groups", h.Group.CreateGroup)
	api.GET("/groups/:chat_id", h.Group.GetGroup)
	api.PATCH("/groups/:chat_id", h.Group.RenameGroup)
	api.DELETE("/groups/:chat_id", h.Group.DeleteGroup)
	api.DELETE("/groups/:chat_id/leave", h.Group.LeaveGroup)
	api.POST("/groups/:chat_id/participants/:participant_id", h.Group.AddParticipant)
	api.DELETE("/groups/:chat_id/participants/:participant_id", h.Group.RemoveParticipant)

	api.POST("/statuses", h.Status.CreateStatus)
	api.GET("/statuses/feed", h.Status.Feed)
	api.GET("/statuses/me", h.Status.Mine)
	api.DELETE("/statuses/expired", h.Status.DeleteExpired)
	api.POST("/statuses/:status_id/view", h.Status.View)
	api.DELETE("/statuses/:status_id", h.Status.DeleteStatus)

	api.GET("/users/online", h.Presence.OnlineStatus)

	api.GET("/contacts", h.Contact.ListContacts)
	api.GET("/contacts/suggestions", h.Contact.Suggestions)
	api.POST("/contacts/add", h.Contact.AddContact)
	api.PATCH("/contacts/block/:contact_id", h.Contact.ToggleBlock)
	api.GET("/contacts/blocked", h.Contact.Blocked)
}
