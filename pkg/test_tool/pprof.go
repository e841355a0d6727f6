package testtool

import (
	"net/http"
	"net/http/pprof"

	"replay_worker/pkg/logger"

	"go.uber.org/zap"
)

// StartPprof 在 addr 上啟動 pprof，addr 為空時不啟動。
// 建議只綁定 127.0.0.1，避免外部存取內部狀態
//
//	go tool pprof http://localhost:6060/debug/pprof/profile?seconds=30
//	go tool pprof http://localhost:6060/debug/pprof/heap
func StartPprof(addr string, log *logger.LogInfo) *http.Server {
	if addr == "" {
		log.Info("pprof disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		log.Info("Starting pprof server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("pprof server failed:", err)
		}
	}()
	return srv
}
