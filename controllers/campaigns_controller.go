package controllers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/ananya/studentfund-go/config"
	models "github.com/ananya/studentfund-go/models"
	utils "github.com/ananya/studentfund-go/utils"
)

// ---------------- CREATE ----------------
func CreateCampaign(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// --- Authenticated user ---
		uid := c.GetString("user_id")
		userID, err := primitive.ObjectIDFromHex(uid)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id"})
			return
		}

		// --- Bind form fields ---
		var input struct {
			Title       string  `form:"title" binding:"required"`
			Description string  `form:"description"`
			Category    string  `form:"category"`
			GoalAmount  float64 `form:"goal_amount" binding:"required,gt=0"`
			Deadline    *string `form:"deadline"` // string for binding, convert later
		}

		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// --- Parse deadline if provided ---
		var deadline *time.Time
		if input.Deadline != nil && *input.Deadline != "" {
			parsed, err := parseDeadline(*input.Deadline)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deadline format, use RFC3339 or YYYY-MM-DD"})
				return
			}
			deadline = &parsed
		}

		// --- Handle file uploads ---
		form, err := c.MultipartForm()
		if err != nil && err != http.ErrNotMultipart {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid form data"})
			return
		}

		var imageURLs []string
		if form != nil {
			files := form.File["images"] // key must be "images"
			for _, fileHeader := range files {
				file, err := fileHeader.Open()
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open file"})
					return
				}

				url, err := utils.UploadCampaignImage(file, fileHeader)
				file.Close()
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{
						"error":   "image upload failed",
						"details": err.Error(),
						"file":    fileHeader.Filename,
					})
					return
				}

				imageURLs = append(imageURLs, url)
			}
		}

		// --- Save campaign ---
		now := time.Now()
		campaign := models.Campaign{
			ID:           primitive.NewObjectID(),
			UserID:       userID,
			Title:        input.Title,
			Description:  input.Description,
			Category:     input.Category,
			GoalAmount:   input.GoalAmount,
			RaisedAmount: 0,
			Deadline:     deadline,
			Status:       "ACTIVE",
			Images:       imageURLs,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("campaigns")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := col.InsertOne(ctx, campaign); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create campaign"})
			return
		}

		c.JSON(http.StatusCreated, campaign)
	}
}

// ---------------- LIST ----------------
func ListCampaigns(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		col := cfg.MongoClient.Database(cfg.DBName).Collection("campaigns")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		// --- Build filter ---
		filter := bson.M{}
		if status := c.Query("status"); status != "" {
			filter["status"] = status
		}
		if q := c.Query("q"); q != "" {
			filter["title"] = bson.M{"$regex": q, "$options": "i"}
		}
		if owner := c.Query("owner"); owner != "" {
			if oid, err := primitive.ObjectIDFromHex(owner); err == nil {
				filter["user_id"] = oid
			}
		}

		// --- Fetch data ---
		cursor, err := col.Find(ctx, filter)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not fetch campaigns"})
			return
		}

		var campaigns []models.Campaign
		if err := cursor.All(ctx, &campaigns); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode campaigns"})
			return
		}

		if len(campaigns) == 0 {
			c.JSON(http.StatusOK, []models.Campaign{})
			return
		}

		// --- Pick the most recently updated campaign ---
		latest := campaigns[0]
		for _, cp := range campaigns {
			if cp.UpdatedAt.After(latest.UpdatedAt) {
				latest = cp
			}
		}

		// --- Generate ETag from latest campaign ---
		etag := utils.GenerateETag(latest.ID, latest.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		// --- Add Last-Modified from latest campaign ---
		c.Header("Last-Modified", latest.UpdatedAt.UTC().Format(http.TimeFormat))

		c.JSON(http.StatusOK, campaigns)
	}
}

// ---------------- GET ----------------
func GetCampaign(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		campaignID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
			return
		}

		var campaign models.Campaign
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err = cfg.MongoClient.Database(cfg.DBName).
			Collection("campaigns").
			FindOne(ctx, bson.M{"_id": campaignID}).
			Decode(&campaign)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}

		etag := utils.GenerateETag(campaign.ID, campaign.UpdatedAt)
		if match := c.GetHeader("If-None-Match"); match != "" && match == etag {
			c.Status(http.StatusNotModified)
			return
		}
		c.Header("ETag", etag)

		c.JSON(http.StatusOK, campaign)
	}
}

// ---------------- UPDATE ----------------
func UpdateCampaign(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("role")
		requesterID := c.GetString("user_id")
		if requesterID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		objID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
			return
		}

		col := cfg.MongoClient.Database(cfg.DBName).Collection("campaigns")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		var existing models.Campaign
		if err := col.FindOne(ctx, bson.M{"_id": objID}).Decode(&existing); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}

		if role != "ADMIN" && existing.UserID.Hex() != requesterID {
			c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}

		var input struct {
			Title       string   `form:"title"`
			Description string   `form:"description"`
			Category    string   `form:"category"`
			GoalAmount  float64  `form:"goal_amount"`
			Deadline    *string  `form:"deadline"`
			Status      string   `form:"status"`
			Images      []string `form:"images"` // existing image URLs to keep
		}

		if err := c.ShouldBind(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		update := bson.M{"updated_at": time.Now()}
		if input.Title != "" {
			update["title"] = input.Title
		}
		if input.Description != "" {
			update["description"] = input.Description
		}
		if input.Category != "" {
			update["category"] = input.Category
		}
		if input.GoalAmount > 0 {
			update["goal_amount"] = input.GoalAmount
		}
		if input.Status != "" {
			if input.Status != "ACTIVE" && input.Status != "CLOSED" && input.Status != "ARCHIVED" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "status must be ACTIVE, CLOSED or ARCHIVED"})
				return
			}
			update["status"] = input.Status
		}
		if input.Deadline != nil && *input.Deadline != "" {
			parsed, err := parseDeadline(*input.Deadline)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deadline format, use RFC3339 or YYYY-MM-DD"})
				return
			}
			update["deadline"] = parsed
		}

		// Note raised_amount is deliberately not updatable here: only the
		// reconciler's increment mutates it.

		// --- Handle new image uploads (multipart form) ---
		newImageURLs := []string{}
		form, _ := c.MultipartForm()
		if form != nil {
			files := form.File["new_images"] // key = "new_images"
			for _, fileHeader := range files {
				file, err := fileHeader.Open()
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to open image"})
					return
				}
				url, err := utils.UploadCampaignImage(file, fileHeader)
				file.Close()
				if err != nil {
					c.JSON(http.StatusInternalServerError, gin.H{"error": "image upload failed", "details": err.Error()})
					return
				}
				newImageURLs = append(newImageURLs, url)
			}
		}

		// --- Merge images (keep provided + add new) ---
		imagesChanged := input.Images != nil || len(newImageURLs) > 0
		if imagesChanged {
			update["images"] = append(input.Images, newImageURLs...)
		}

		if len(update) == 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no fields to update"})
			return
		}

		_, err = col.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": update})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not update campaign"})
			return
		}

		// Clean up Cloudinary assets no longer referenced by the campaign.
		// Best effort: a failed delete leaves an orphaned asset, not a bad record.
		if imagesChanged {
			for _, img := range utils.DroppedImages(existing.Images, update["images"].([]string)) {
				if err := utils.DeleteCampaignImage(img); err != nil {
					log.Printf("cloudinary delete failed for %s: %v", img, err)
				}
			}
		}

		var updated models.Campaign
		if err := col.FindOne(ctx, bson.M{"_id": objID}).Decode(&updated); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve updated campaign"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":  "campaign updated",
			"campaign": updated,
		})
	}
}

// ---------------- RECOUNT ----------------
// RecountRaised recomputes the raised amount from PAID donations and reports
// drift against the stored counter. Audit safeguard, admin only.
func RecountRaised(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("role") != "ADMIN" {
			c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}

		campaignID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid campaign id"})
			return
		}

		db := cfg.MongoClient.Database(cfg.DBName)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var campaign models.Campaign
		if err := db.Collection("campaigns").FindOne(ctx, bson.M{"_id": campaignID}).Decode(&campaign); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "campaign not found"})
			return
		}

		cursor, err := db.Collection("donations").Aggregate(ctx, []bson.M{
			{"$match": bson.M{"campaign_id": campaignID, "status": models.DonationPaid}},
			{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$amount"}}},
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not aggregate donations"})
			return
		}

		var results []struct {
			Total float64 `bson:"total"`
		}
		if err := cursor.All(ctx, &results); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not decode aggregate"})
			return
		}

		var computed float64
		if len(results) > 0 {
			computed = results[0].Total
		}

		c.JSON(http.StatusOK, gin.H{
			"campaign_id": campaignID.Hex(),
			"stored":      campaign.RaisedAmount,
			"computed":    computed,
			"drift":       campaign.RaisedAmount - computed,
		})
	}
}

func parseDeadline(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err == nil {
		return parsed, nil
	}
	// Try fallback formats
	layouts := []string{"2006-01-02", "2006-01-02 15:04", "2006-01-02 15:04:05"}
	for _, layout := range layouts {
		if t, e := time.Parse(layout, raw); e == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
