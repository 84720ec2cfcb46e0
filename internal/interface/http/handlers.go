package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ivrit-hub/progress-hub/internal/application/command"
	"github.com/ivrit-hub/progress-hub/internal/application/query"
	"github.com/ivrit-hub/progress-hub/internal/domain/activity"
	"github.com/ivrit-hub/progress-hub/internal/domain/goal"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(c echo.Context) error {
	status := s.deps.Health.Check(c.Request().Context())
	status.Uptime = s.Uptime().Round(time.Second).String()
	if status.Version == "" {
		status.Version = s.config.Version
	}

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleOpenProgress(c echo.Context) error {
	res, err := s.deps.OpenProgress.Handle(c.Request().Context(), command.OpenProgressCommand{
		UserID: c.Param("userID"),
	})
	if err != nil {
		return err
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return writeData(c, status, RecordView{
		UserID:  res.Record.UserID,
		TotalXP: res.Record.TotalXP.Int(),
		Level:   res.Record.Level.String(),
		Streak:  res.Record.Streak,
		Created: res.Created,
	})
}

func (s *Server) handleGetOverview(c echo.Context) error {
	fresh, err := queryBool(c, "fresh")
	if err != nil {
		return err
	}

	res, err := s.deps.GetOverview.Handle(c.Request().Context(), query.GetOverviewQuery{
		UserID:    c.Param("userID"),
		SkipCache: fresh,
	})
	if err != nil {
		return err
	}
	return writeCached(c, newOverviewView(res.Overview), res.Cached)
}

func (s *Server) handleRecordActivity(c echo.Context) error {
	res, err := s.deps.RecordDailyActivity.Handle(c.Request().Context(), command.RecordDailyActivityCommand{
		UserID: c.Param("userID"),
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, newProgressView(res.Progress))
}

// ══════════════════════════════════════════════════════════════════════════════
// STORIES AND PRACTICE
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCompleteStory(c echo.Context) error {
	var req CompleteStoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := s.deps.CompleteStory.Handle(c.Request().Context(), command.CompleteStoryCommand{
		UserID:             c.Param("userID"),
		StoryID:            c.Param("storyID"),
		Title:              req.Title,
		Score:              req.Score,
		TimeSpent:          req.TimeSpent,
		Points:             req.Points,
		WithoutTranslation: req.WithoutTranslation,
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, StoryView{
		StoryID:  res.Story.StoryID,
		Score:    res.Story.Score,
		Attempts: res.Story.Attempts,
		XPEarned: res.XPEarned,
		Progress: newProgressView(res.Progress),
	})
}

func (s *Server) handleSubmitPractice(c echo.Context) error {
	var req SubmitPracticeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := s.deps.SubmitPractice.Handle(c.Request().Context(), command.SubmitPracticeCommand{
		UserID:    c.Param("userID"),
		Type:      activity.PracticeType(req.Type),
		Score:     req.Score,
		TimeSpent: req.TimeSpent,
		Mistakes:  req.Mistakes,
		Feedback:  req.Feedback,
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusCreated, PracticeView{
		ID:       res.Practice.ID,
		Type:     string(res.Practice.Type),
		Score:    res.Practice.Score,
		XPEarned: res.XPEarned,
		Progress: newProgressView(res.Progress),
	})
}

func (s *Server) handleGetPracticeTrends(c echo.Context) error {
	res, err := s.deps.GetPracticeTrends.Handle(c.Request().Context(), query.GetPracticeTrendsQuery{
		UserID: c.Param("userID"),
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, newTrendsView(res))
}

func (s *Server) handleListAchievements(c echo.Context) error {
	res, err := s.deps.ListAchievements.Handle(c.Request().Context(), query.ListAchievementsQuery{
		UserID: c.Param("userID"),
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, newAchievementsView(res))
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleCreateGoal(c echo.Context) error {
	var req CreateGoalRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := s.deps.CreateGoal.Handle(c.Request().Context(), command.CreateGoalCommand{
		UserID:  c.Param("userID"),
		Type:    goal.Type(req.Type),
		Target:  req.Target,
		EndDate: req.EndDate,
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusCreated, newGoalView(res.Goal, res.Goal.Percent(), res.Goal.IsActive(s.deps.Clock.Now())))
}

func (s *Server) handleListGoals(c echo.Context) error {
	activeOnly, err := queryBool(c, "active")
	if err != nil {
		return err
	}

	res, err := s.deps.ListGoals.Handle(c.Request().Context(), query.ListGoalsQuery{
		UserID:     c.Param("userID"),
		ActiveOnly: activeOnly,
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, newGoalsView(res))
}

func (s *Server) handleUpdateGoalProgress(c echo.Context) error {
	var req UpdateGoalProgressRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	res, err := s.deps.UpdateGoalProgress.Handle(c.Request().Context(), command.UpdateGoalProgressCommand{
		UserID:   c.Param("userID"),
		GoalID:   c.Param("goalID"),
		Progress: *req.Progress,
	})
	if err != nil {
		return err
	}
	return writeData(c, http.StatusOK, GoalProgressView{
		Goal:           newGoalView(res.Goal, res.Goal.Percent(), res.Goal.IsActive(s.deps.Clock.Now())),
		NewlyCompleted: res.NewlyCompleted,
		XPEarned:       res.XPEarned,
		Progress:       newProgressView(res.Progress),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}

func queryBool(c echo.Context, key string) (bool, error) {
	raw := c.QueryParam(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "query parameter "+key+" must be a boolean")
	}
	return v, nil
}
