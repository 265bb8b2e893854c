package cmd

import (
	"fmt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"texttools/internal/apihandlers"
	"texttools/internal/app"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run texttools as an HTTP API server",
	Long: `Starts an HTTP server exposing job submission, status and result fetching
for the detect and categorize use cases under /api/v1/:kind/jobs/:name.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}

		router := newRouter(appInstance)

		listenAddr := appInstance.Config.Server.Address
		if serveAddr != "" {
			listenAddr = serveAddr
		}
		log.Infof("Starting texttools API server on %s", listenAddr)

		// router.Run blocks unless an error occurs
		if err := router.Run(listenAddr); err != nil {
			return fmt.Errorf("failed to run API server: %w", err)
		}
		return nil
	},
}

func newRouter(a *app.App) *gin.Engine {
	if log.GetLevel() < log.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	apihandlers.NewAPIHandler(func(kind string) (apihandlers.Lifecycle, error) {
		svc, err := a.Lifecycle(kind)
		if err != nil {
			return nil, err
		}
		return svc, nil
	}).RegisterRoutes(router)
	return router
}

// requestLogger logs each request through logrus instead of gin's writer.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		log.WithFields(log.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		}).Info("API request")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.address)")
}
