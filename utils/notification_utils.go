package utils

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"firebase.google.com/go/v4/messaging"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/gomail.v2"

	"github.com/commonroom/commonroom_backend/config"
	"github.com/commonroom/commonroom_backend/models"
)

// SaveNotification saves a notification to the database
func SaveNotification(db *mongo.Client, userID primitive.ObjectID, title, message, notifType string, data interface{}) error {
	collection := config.GetCollection(db, "notifications")

	notification := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      notifType,
		Data:      data,
		IsRead:    false,
		CreatedAt: time.Now(),
	}

	_, err := collection.InsertOne(context.Background(), notification)
	return err
}

// SendFCMNotificationToUser sends a Firebase Cloud Messaging notification to a user
func SendFCMNotificationToUser(db *mongo.Client, userID primitive.ObjectID, title, message string, data map[string]interface{}) error {
	collection := config.GetCollection(db, "users")
	var user models.User
	err := collection.FindOne(context.Background(), bson.M{"_id": userID}).Decode(&user)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}

	if user.FCMToken == "" {
		return fmt.Errorf("user has no FCM token")
	}

	if config.FirebaseApp == nil {
		return fmt.Errorf("firebase app not initialized")
	}

	ctx := context.Background()
	client, err := config.FirebaseApp.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize messaging client: %w", err)
	}

	notificationData := map[string]string{
		"timestamp": time.Now().Format(time.RFC3339),
	}
	for key, value := range data {
		if str, ok := value.(string); ok {
			notificationData[key] = str
		}
	}

	fcmMessage := &messaging.Message{
		Token: user.FCMToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  message,
		},
		Data: notificationData,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     "default",
				ChannelID: "commonroom_fcm_channel",
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: title,
						Body:  message,
					},
					Sound:    "default",
					Badge:    func() *int { v := 1; return &v }(),
					Category: "POST_ACTIVITY",
				},
			},
		},
	}

	response, err := client.Send(ctx, fcmMessage)
	if err != nil {
		return fmt.Errorf("failed to send FCM notification: %w", err)
	}

	log.Printf("FCM notification sent to user %s: %s", userID.Hex(), response)
	return nil
}

// SendEmailToUser sends a plain-text email via SMTP. Failures are logged
// by callers; email is best-effort alongside the in-app notification.
func SendEmailToUser(to, subject, body string) error {
	smtpHost := os.Getenv("SMTP_HOST")
	smtpUser := os.Getenv("SMTP_USER")
	smtpPass := os.Getenv("SMTP_PASS")
	smtpPort := 2525
	if portStr := os.Getenv("SMTP_PORT"); portStr != "" {
		fmt.Sscanf(portStr, "%d", &smtpPort)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", smtpUser)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	d := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPass)
	return d.DialAndSend(m)
}

// NotifyPostAuthor notifies a post's author that someone interacted with
// their post: in-app notification always, FCM and email best-effort. The
// actor never gets notified about their own activity.
func NotifyPostAuthor(db *mongo.Client, post *models.Post, actorID primitive.ObjectID, actorName, notifType string, commentID *primitive.ObjectID) {
	if post.UserID == actorID {
		return
	}

	var title, message string
	switch notifType {
	case models.NotificationTypeComment:
		title = "New comment"
		message = fmt.Sprintf("%s commented on your post", actorName)
	case models.NotificationTypeReply:
		title = "New reply"
		message = fmt.Sprintf("%s replied to a comment on your post", actorName)
	case models.NotificationTypeLike:
		title = "New like"
		message = fmt.Sprintf("%s liked your post", actorName)
	default:
		return
	}

	data := map[string]interface{}{
		"type":    notifType,
		"postId":  post.ID.Hex(),
		"actorId": actorID.Hex(),
	}
	if commentID != nil {
		data["commentId"] = commentID.Hex()
	}

	if err := SaveNotification(db, post.UserID, title, message, notifType, data); err != nil {
		log.Printf("Failed to save notification: %v", err)
	}

	if err := SendFCMNotificationToUser(db, post.UserID, title, message, data); err != nil {
		log.Printf("Failed to send FCM notification: %v", err)
	}

	var author models.User
	err := config.GetCollection(db, "users").FindOne(context.Background(), bson.M{"_id": post.UserID}).Decode(&author)
	if err != nil {
		log.Printf("Failed to load post author for email: %v", err)
		return
	}
	body := fmt.Sprintf("Hi %s,\n\n%s.\n\nOpen the app to see it.", author.FullName, message)
	if err := SendEmailToUser(author.Email, title, body); err != nil {
		log.Printf("Failed to send email notification: %v", err)
	}
}
