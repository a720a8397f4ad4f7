package services

import "github.com/prometheus/client_golang/prometheus"

var (
	publishRequestsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_requests_total",
		Help: "Anzahl angelegter Freigabe-Anträge",
	})
	publishNotificationsFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "publish_notifications_failed_total",
		Help: "Anzahl fehlgeschlagener Gatekeeper-Benachrichtigungen",
	})
	authorizationDenialsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authorization_denials_total",
		Help: "Abgelehnte Zugriffe nach Aktion",
	}, []string{"action"})
	contentVersionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "content_versions_created_total",
		Help: "Anzahl neu angelegter Inhaltsversionen",
	})
	// PublishLogsWaiting wird vom Cron-Job in main aktualisiert.
	PublishLogsWaiting = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "publish_logs_waiting",
		Help: "Anzahl offener Freigabe-Anträge",
	})
)

func init() {
	prometheus.MustRegister(publishRequestsTotal, publishNotificationsFailedTotal,
		authorizationDenialsTotal, contentVersionsCreatedTotal, PublishLogsWaiting)
}
