package httpapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
	"github.com/vk/flowgrid/internal/workflowstore"
)

// nodeType is the public description of a registered node type.
type nodeType struct {
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	Icon     string         `json:"icon,omitempty"`
	Category string         `json:"category"`
	Inputs   []string       `json:"inputs"`
	Outputs  []string       `json:"outputs"`
	Defaults map[string]any `json:"defaults"`
}

type createWorkflowRequest struct {
	Name string `json:"name"`
}

type addNodeRequest struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position model.Position `json:"position"`
	Config   map[string]any `json:"config"`
}

type updateNodeRequest struct {
	Config   map[string]any  `json:"config"`
	Position *model.Position `json:"position"`
}

type connectRequest struct {
	From     string `json:"from"`
	FromPort string `json:"fromPort"`
	To       string `json:"to"`
	ToPort   string `json:"toPort"`
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

type runResponse struct {
	RunID string `json:"runId"`
}

// bind decodes the request body only. Path parameters are read explicitly so
// they never leak into map-shaped bodies.
func bind(c echo.Context, v any) error {
	if err := (&echo.DefaultBinder{}).BindBody(c, v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	return nil
}

// Health reports liveness.
// (GET /health)
func (s *Server) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// ListNodeTypes returns every registered node type.
// (GET /api/v1/node-types)
func (s *Server) ListNodeTypes(c echo.Context) error {
	defs := s.App.Registry().Definitions()
	out := make([]nodeType, 0, len(defs))
	for _, d := range defs {
		out = append(out, describe(d))
	}
	return c.JSON(http.StatusOK, out)
}

func describe(d *registry.Definition) nodeType {
	return nodeType{
		Type:     d.Type,
		Name:     d.Name,
		Icon:     d.Icon,
		Category: string(d.Category),
		Inputs:   append([]string{}, d.Inputs...),
		Outputs:  append([]string{}, d.Outputs...),
		Defaults: d.DefaultConfig(),
	}
}

// ListWorkflows returns all workflows.
// (GET /api/v1/workflows)
func (s *Server) ListWorkflows(c echo.Context) error {
	return c.JSON(http.StatusOK, s.App.Store().List())
}

// CreateWorkflow creates an empty workflow.
// (POST /api/v1/workflows)
func (s *Server) CreateWorkflow(c echo.Context) error {
	var req createWorkflowRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name is required")
	}
	wf, err := s.App.CreateWorkflow(c.Request().Context(), req.Name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow returns one workflow.
// (GET /api/v1/workflows/:id)
func (s *Server) GetWorkflow(c echo.Context) error {
	wf, err := s.App.Store().Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// DeleteWorkflow removes a workflow.
// (DELETE /api/v1/workflows/:id)
func (s *Server) DeleteWorkflow(c echo.Context) error {
	if err := s.App.Store().Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetVariables replaces a workflow's initial variables.
// (PUT /api/v1/workflows/:id/variables)
func (s *Server) SetVariables(c echo.Context) error {
	vars := map[string]any{}
	if err := bind(c, &vars); err != nil {
		return err
	}
	wf, err := s.App.Store().SetVariables(c.Request().Context(), c.Param("id"), vars)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// SetEnabled enables or disables a workflow.
// (PUT /api/v1/workflows/:id/enabled)
func (s *Server) SetEnabled(c echo.Context) error {
	var req enabledRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	wf, err := s.App.Store().SetEnabled(c.Request().Context(), c.Param("id"), req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, wf)
}

// ValidateWorkflow reports definition problems; 204 means none.
// (GET /api/v1/workflows/:id/validate)
func (s *Server) ValidateWorkflow(c echo.Context) error {
	if err := s.App.Validate(c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// AddNode adds a node to a workflow.
// (POST /api/v1/workflows/:id/nodes)
func (s *Server) AddNode(c echo.Context) error {
	var req addNodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	var opts []workflowstore.NodeOption
	if req.ID != "" {
		opts = append(opts, workflowstore.WithNodeID(req.ID))
	}
	if len(req.Config) > 0 {
		opts = append(opts, workflowstore.WithConfig(req.Config))
	}
	node, err := s.App.AddNode(c.Request().Context(), c.Param("id"), req.Type, req.Position, opts...)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, node)
}

// UpdateNode replaces a node's configuration and optionally moves it.
// (PATCH /api/v1/workflows/:id/nodes/:node)
func (s *Server) UpdateNode(c echo.Context) error {
	var req updateNodeRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	wfID, nodeID := c.Param("id"), c.Param("node")
	if req.Position != nil {
		if err := s.App.Store().MoveNode(ctx, wfID, nodeID, *req.Position); err != nil {
			return err
		}
	}
	if req.Config != nil {
		if _, err := s.App.Store().UpdateNodeConfig(ctx, wfID, nodeID, req.Config); err != nil {
			return err
		}
	}
	wf, err := s.App.Store().Get(wfID)
	if err != nil {
		return err
	}
	node, _ := wf.Node(nodeID)
	return c.JSON(http.StatusOK, node)
}

// DeleteNode removes a node and its connections.
// (DELETE /api/v1/workflows/:id/nodes/:node)
func (s *Server) DeleteNode(c echo.Context) error {
	if err := s.App.DeleteNode(c.Request().Context(), c.Param("id"), c.Param("node")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Connect links two node ports.
// (POST /api/v1/workflows/:id/connections)
func (s *Server) Connect(c echo.Context) error {
	var req connectRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	conn, err := s.App.Connect(c.Request().Context(), c.Param("id"), req.From, req.FromPort, req.To, req.ToPort)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, conn)
}

// Disconnect removes one connection.
// (DELETE /api/v1/workflows/:id/connections/:conn)
func (s *Server) Disconnect(c echo.Context) error {
	if err := s.App.Store().Disconnect(c.Request().Context(), c.Param("id"), c.Param("conn")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// StartRun starts a run; the optional body is the trigger payload.
// (POST /api/v1/workflows/:id/runs)
func (s *Server) StartRun(c echo.Context) error {
	trigger := map[string]any{}
	if err := bind(c, &trigger); err != nil {
		return err
	}
	id, err := s.App.Run(c.Request().Context(), c.Param("id"), trigger)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, runResponse{RunID: id})
}

// ListActiveRuns returns the ids of active runs.
// (GET /api/v1/runs)
func (s *Server) ListActiveRuns(c echo.Context) error {
	return c.JSON(http.StatusOK, s.App.Tracker().ListActive())
}

// GetRun returns a run's state.
// (GET /api/v1/runs/:run)
func (s *Server) GetRun(c echo.Context) error {
	state, err := s.App.RunState(c.Param("run"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, state)
}

// GetRunLog returns a run's execution log.
// (GET /api/v1/runs/:run/log)
func (s *Server) GetRunLog(c echo.Context) error {
	log, err := s.App.RunLog(c.Param("run"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, log)
}

// StopRun halts a run.
// (POST /api/v1/runs/:run/stop)
func (s *Server) StopRun(c echo.Context) error {
	if err := s.App.Stop(c.Request().Context(), c.Param("run")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
