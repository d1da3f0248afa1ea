package analysis

import (
	"net/http"

	"go.uber.org/zap"

	"chess_companion/internal/bootstrap"
	"chess_companion/internal/httpresponse"
	analysisuc "chess_companion/internal/usecase/analysis"
	"chess_companion/internal/utils"
)

type AnalysisHandler struct {
	cfg    bootstrap.Config
	log    *zap.SugaredLogger
	engine analysisuc.Evaluator // nil when the engine failed to start
}

type EvaluateRequest struct {
	FEN   string `json:"fen"`
	Depth int    `json:"depth,omitempty"`
}

func NewAnalysisHandler(cfg bootstrap.Config, log *zap.SugaredLogger, engine analysisuc.Evaluator) *AnalysisHandler {
	return &AnalysisHandler{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}
}

// HandleEvaluate runs a manual analysis of an arbitrary position at a
// user-selected depth. With no engine available the endpoint degrades to
// 503 instead of blocking anything else.
func (a *AnalysisHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	if a.engine == nil {
		httpresponse.WriteResponseWithStatus(w, http.StatusServiceUnavailable,
			httpresponse.ErrorResponse{ErrorDescription: "no evaluation available"})
		return
	}

	var req EvaluateRequest
	if err := utils.DecodeJSONRequest(r, &req); err != nil {
		a.log.Error("Evaluate: malformed JSON: ", err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: httpresponse.MALFORMEDJSON_errorDesc})
		return
	}
	if req.FEN == "" {
		httpresponse.WriteResponseWithStatus(w, http.StatusBadRequest,
			httpresponse.ErrorResponse{ErrorDescription: "fen is required"})
		return
	}

	depth := req.Depth
	if depth <= 0 {
		depth = a.cfg.EngineReplayDepth
	}
	if depth > a.cfg.EngineMaxDepth {
		depth = a.cfg.EngineMaxDepth
	}

	result, err := a.engine.Analyze(r.Context(), req.FEN, depth)
	if err != nil {
		a.log.Errorf("Evaluate: analysis of %q failed: %v", req.FEN, err)
		httpresponse.WriteResponseWithStatus(w, http.StatusBadGateway,
			httpresponse.ErrorResponse{ErrorDescription: "evaluation failed"})
		return
	}

	httpresponse.WriteResponseWithStatus(w, http.StatusOK, result)
}
