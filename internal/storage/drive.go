package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// DriveBackup uploads finished transcripts and checkpoint metadata to Google
// Drive. It is optional: without credentials everything stays local only.
type DriveBackup struct {
	service    *drive.Service
	folderName string
	folderID   string
}

// NewDriveBackup creates a backup client from OAuth credential files.
func NewDriveBackup(credentialsFile, tokenFile, folderName string) (*DriveBackup, error) {
	ctx := context.Background()

	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %v", err)
	}

	config, err := google.ConfigFromJSON(b, drive.DriveFileScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %v", err)
	}

	client := getClient(config, tokenFile)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("unable to create Drive service: %v", err)
	}

	db := &DriveBackup{
		service:    srv,
		folderName: folderName,
	}

	if err := db.ensureFolder(); err != nil {
		return nil, err
	}

	return db, nil
}

// getClient retrieves a token, saves the token, then returns the generated client
func getClient(config *oauth2.Config, tokenFile string) *http.Client {
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		tok = getTokenFromWeb(config)
		saveToken(tokenFile, tok)
	}
	return config.Client(context.Background(), tok)
}

// getTokenFromWeb requests a token from the web
func getTokenFromWeb(config *oauth2.Config) *oauth2.Token {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser:\n%v\n", authURL)
	fmt.Print("Enter authorization code: ")

	var authCode string
	if _, err := fmt.Scan(&authCode); err != nil {
		panic(fmt.Sprintf("Unable to read authorization code: %v", err))
	}

	tok, err := config.Exchange(context.TODO(), authCode)
	if err != nil {
		panic(fmt.Sprintf("Unable to retrieve token from web: %v", err))
	}
	return tok
}

// tokenFromFile retrieves a token from a local file
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// saveToken saves a token to a file path
func saveToken(path string, token *oauth2.Token) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		panic(fmt.Sprintf("Unable to cache oauth token: %v", err))
	}
	defer f.Close()
	json.NewEncoder(f).Encode(token)
}

// ensureFolder finds or creates the backup root folder
func (db *DriveBackup) ensureFolder() error {
	id, err := db.findOrCreateFolder(db.folderName, "")
	if err != nil {
		return err
	}
	db.folderID = id
	return nil
}

// UploadSample uploads a sample's transcript text and transcript.json under
// <root>/<user>/<sampleID>/ and returns a viewing URL.
func (db *DriveBackup) UploadSample(sample *types.Sample) (string, error) {
	userID, err := db.findOrCreateFolder(sample.User, db.folderID)
	if err != nil {
		return "", err
	}
	sampleID, err := db.findOrCreateFolder(sample.ID, userID)
	if err != nil {
		return "", err
	}

	txtFile := &drive.File{
		Name:    "transcript.txt",
		Parents: []string{sampleID},
	}
	if _, err := db.service.Files.Create(txtFile).Media(strings.NewReader(sample.Transcript.Text)).Do(); err != nil {
		return "", fmt.Errorf("failed to upload transcript: %v", err)
	}

	metaJSON, _ := json.MarshalIndent(sample.Transcript, "", "  ")
	metaFile := &drive.File{
		Name:    "transcript.json",
		Parents: []string{sampleID},
	}
	created, err := db.service.Files.Create(metaFile).Media(bytes.NewReader(metaJSON)).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload transcript metadata: %v", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// UploadCheckpointInfo uploads a checkpoint's training metadata under
// <root>/<user>/checkpoints/. The weight blob itself stays local.
func (db *DriveBackup) UploadCheckpointInfo(user, name string, meta types.TrainingMetadata) (string, error) {
	userID, err := db.findOrCreateFolder(user, db.folderID)
	if err != nil {
		return "", err
	}
	ckptID, err := db.findOrCreateFolder("checkpoints", userID)
	if err != nil {
		return "", err
	}

	metaJSON, _ := json.MarshalIndent(meta, "", "  ")
	file := &drive.File{
		Name:    name + "_training_info.json",
		Parents: []string{ckptID},
	}
	created, err := db.service.Files.Create(file).Media(bytes.NewReader(metaJSON)).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload checkpoint metadata: %v", err)
	}

	return fmt.Sprintf("https://drive.google.com/file/d/%s/view", created.Id), nil
}

// findOrCreateFolder looks a folder up by name under parent ("" = drive root)
// and creates it when missing.
func (db *DriveBackup) findOrCreateFolder(name, parentID string) (string, error) {
	query := fmt.Sprintf("name='%s' and mimeType='application/vnd.google-apps.folder' and trashed=false", name)
	if parentID != "" {
		query += fmt.Sprintf(" and '%s' in parents", parentID)
	}

	r, err := db.service.Files.List().Q(query).Spaces("drive").Fields("files(id, name)").Do()
	if err != nil {
		return "", fmt.Errorf("unable to search for folder: %v", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	folder := &drive.File{
		Name:     name,
		MimeType: "application/vnd.google-apps.folder",
	}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}

	file, err := db.service.Files.Create(folder).Fields("id").Do()
	if err != nil {
		return "", fmt.Errorf("unable to create folder: %v", err)
	}
	return file.Id, nil
}
