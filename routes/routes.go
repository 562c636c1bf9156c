package routes

import (
	"github.com/gin-gonic/gin"

	config "github.com/ananya/studentfund-go/config"
	controllers "github.com/ananya/studentfund-go/controllers"
	"github.com/ananya/studentfund-go/gateway"
	middleware "github.com/ananya/studentfund-go/middleware"
	"github.com/ananya/studentfund-go/services"
	utils "github.com/ananya/studentfund-go/utils"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config) {
	store := services.NewMongoStore(cfg.MongoClient, cfg.DBName)
	razorpay := gateway.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret)
	donations := services.NewDonationService(store, razorpay, services.MailerFunc(utils.SendEmail))

	// public
	r.POST("/auth/register", controllers.Register(cfg))
	r.POST("/auth/login", controllers.Login(cfg))
	r.POST("/auth/refresh", controllers.RefreshToken(cfg))

	r.GET("/campaigns", controllers.ListCampaigns(cfg))
	r.GET("/campaigns/:id", controllers.GetCampaign(cfg))

	// donation checkout: guests and logged-in donors
	r.POST("/donations/orders", middleware.OptionalAuth(cfg), controllers.CreateDonationOrder(cfg, donations))
	r.POST("/donations/verify", controllers.VerifyPayment(cfg, donations))

	// gateway callbacks
	r.POST("/webhooks/razorpay", controllers.RazorpayWebhook(cfg, donations))

	// protected
	auth := middleware.AuthMiddleware(cfg)

	campaigns := r.Group("/campaigns")
	campaigns.Use(auth)
	{
		campaigns.POST("", controllers.CreateCampaign(cfg))
		campaigns.PATCH("/:id", controllers.UpdateCampaign(cfg))
		campaigns.GET("/:id/donations", controllers.ListCampaignDonations(cfg))
		campaigns.POST("/:id/recount", controllers.RecountRaised(cfg))
	}

	me := r.Group("/me")
	me.Use(auth)
	{
		me.GET("/donations", controllers.ListMyDonations(cfg))
	}
}
