package db

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/R-TocoToucan/Parallel-LLM-Translator/internal/config"
)

// FirebaseClients bundles the Firebase Admin SDK clients the relay needs.
// Auth is nil unless Firebase is the identity provider.
type FirebaseClients struct {
	Firestore *firestore.Client
	Auth      *auth.Client
}

// Close releases the Firestore connection.
func (c *FirebaseClients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}

// credentialsOption picks the service account source: a credentials file, base64 JSON,
// raw JSON, or Application Default Credentials when none is set (nil option).
func credentialsOption(appConfig *config.Config, logger *zap.Logger) (option.ClientOption, error) {
	switch {
	case appConfig.GoogleApplicationCredentials != "":
		logger.Info("Initializing Firebase with credentials file", zap.String("path", appConfig.GoogleApplicationCredentials))
		if _, err := os.Stat(appConfig.GoogleApplicationCredentials); os.IsNotExist(err) {
			logger.Warn("Credentials file does not exist, the SDK may still fall back to ADC",
				zap.String("path", appConfig.GoogleApplicationCredentials))
		}
		return option.WithCredentialsFile(appConfig.GoogleApplicationCredentials), nil
	case appConfig.FirebaseServiceAccountJSONBase64 != "":
		logger.Info("Initializing Firebase with base64 encoded service account JSON")
		decoded, err := base64.StdEncoding.DecodeString(appConfig.FirebaseServiceAccountJSONBase64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode FIREBASE_SERVICE_ACCOUNT_JSON_BASE64: %w", err)
		}
		return option.WithCredentialsJSON(decoded), nil
	case appConfig.FirebaseServiceAccount != "":
		logger.Info("Initializing Firebase with service account JSON from environment")
		return option.WithCredentialsJSON([]byte(appConfig.FirebaseServiceAccount)), nil
	default:
		logger.Info("Initializing Firebase using Application Default Credentials")
		return nil, nil
	}
}

// InitFirebase initializes the Firebase Admin SDK and returns the Firestore client, plus the
// Auth client when Firebase tokens are used for identity.
func InitFirebase(ctx context.Context, appConfig *config.Config, logger *zap.Logger) (*FirebaseClients, error) {
	if appConfig == nil {
		return nil, fmt.Errorf("InitFirebase: appConfig cannot be nil")
	}

	credsOption, err := credentialsOption(appConfig, logger)
	if err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if credsOption != nil {
		opts = append(opts, credsOption)
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: appConfig.FirebaseProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}

	clients := &FirebaseClients{}
	if appConfig.StoreBackend == config.StoreFirestore {
		clients.Firestore, err = app.Firestore(ctx)
		if err != nil {
			return nil, fmt.Errorf("app.Firestore: %w", err)
		}
		logger.Info("Firestore client initialized", zap.String("projectID", appConfig.FirebaseProjectID))
	}

	if appConfig.IdentityProvider == config.IdentityFirebase {
		clients.Auth, err = app.Auth(ctx)
		if err != nil {
			_ = clients.Close()
			return nil, fmt.Errorf("app.Auth: %w", err)
		}
		logger.Info("Firebase Auth client initialized")
	}

	return clients, nil
}
