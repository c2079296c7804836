package story

import (
	"context"
	"fmt"
	"log"
	"time"

	"idealcity/internal/model"
)

// Scoring bounds. Motivation components: narrative length, update delta,
// responsiveness; logic is coverage-driven with a floor of 60.
const (
	narrativeComponentCap  = 60
	deltaComponentCap      = 35
	responsiveComponentCap = 15

	logicFloor        = 60
	logicPerField     = 18
	motivationCeiling = 100
	capabilityCeiling = 200

	deltaPerResource = 10
	deltaPerSuccess  = 8
	deltaPoseFirst   = 5
	perCoveredField  = 5
)

var missingMessages = map[string]string{
	model.FieldLogicOutline:     "缺少执行步骤",
	model.FieldWorldConstraints: "缺少世界约束",
	model.FieldResourceLedger:   "缺少资源台账",
	model.FieldSuccessCriteria:  "缺少成功判据",
	model.FieldRiskRegister:     "缺少风险登记",
}

// Manager merges submissions into story state and recomputes scores,
// coverage, blocking and readiness on every pass.
type Manager struct {
	repo            *Repository
	agent           *Agent
	readyCapability int
	log             *log.Logger
}

func NewManager(repo *Repository, agent *Agent, readyCapability int, logger *log.Logger) *Manager {
	return &Manager{repo: repo, agent: agent, readyCapability: readyCapability, log: logger}
}

// Merge folds a normalised submission plus the agent's patch into the
// stored state. The agent is consulted outside the repository lock.
func (m *Manager) Merge(ctx context.Context, sub model.DeviceSpecSubmission, spec model.NormalizedSpec) (model.StoryState, error) {
	prior, err := m.repo.Load(sub.PlayerID, sub.ScenarioID)
	if err != nil {
		return prior, err
	}
	var patch Patch
	if m.agent != nil {
		patch = m.agent.Propose(ctx, sub.Narrative, spec, prior)
	} else {
		patch = FallbackPatch(sub.Narrative)
	}
	return m.repo.Update(sub.PlayerID, sub.ScenarioID, func(state *model.StoryState) {
		m.merge(state, sub, spec, patch)
	})
}

func (m *Manager) merge(state *model.StoryState, sub model.DeviceSpecSubmission, spec model.NormalizedSpec, patch Patch) {
	prevResources := len(state.Resources)
	prevSuccess := len(state.SuccessCriteria)
	prevMotivation := state.MotivationScore
	poseWasSet := state.PlayerPose != nil
	prevCoverage := make(map[string]bool, len(state.Coverage))
	for k, v := range state.Coverage {
		prevCoverage[k] = v
	}

	state.Goals = model.AppendUnique(state.Goals, dropPlaceholders(spec.Goal)...)
	state.Goals = model.AppendUnique(state.Goals, dropPlaceholders(patch.Goals)...)
	state.LogicOutline = model.AppendUnique(state.LogicOutline, dropPlaceholders(spec.LogicOutline)...)
	state.LogicOutline = model.AppendUnique(state.LogicOutline, dropPlaceholders(patch.LogicOutline)...)
	state.WorldConstraints = model.AppendUnique(state.WorldConstraints, dropPlaceholders(spec.WorldConstraints)...)
	state.WorldConstraints = model.AppendUnique(state.WorldConstraints, dropPlaceholders(patch.WorldConstraints)...)
	state.SuccessCriteria = model.AppendUnique(state.SuccessCriteria, dropPlaceholders(spec.SuccessCriteria)...)
	state.SuccessCriteria = model.AppendUnique(state.SuccessCriteria, dropPlaceholders(patch.SuccessCriteria)...)
	state.Resources = model.AppendUnique(state.Resources, normalizeAll(spec.ResourceLedger, normalizeResource)...)
	state.Resources = model.AppendUnique(state.Resources, normalizeAll(patch.Resources, normalizeResource)...)
	state.RiskRegister = model.AppendUnique(state.RiskRegister, normalizeAll(spec.RiskRegister, normalizeRisk)...)
	state.RiskRegister = model.AppendUnique(state.RiskRegister, normalizeAll(patch.RiskRegister, normalizeRisk)...)
	state.CommunityRequirements = model.AppendUnique(state.CommunityRequirements, dropPlaceholders(patch.CommunityRequirements)...)
	state.Notes = model.AppendUnique(state.Notes, dropPlaceholders(patch.Notes)...)
	state.OpenQuestions = model.AppendUnique(state.OpenQuestions, dropPlaceholders(patch.OpenQuestions)...)

	if sub.Pose != nil {
		pose := *sub.Pose
		state.PlayerPose = &pose
		state.LocationHint = fmt.Sprintf("%s %.0f %.0f %.0f", pose.World, pose.X, pose.Y, pose.Z)
	}

	state.Coverage = coverage(state)
	covered := 0
	for _, ok := range state.Coverage {
		if ok {
			covered++
		}
	}

	state.LogicScore = logicPerField * covered
	if state.LogicScore < logicFloor {
		state.LogicScore = logicFloor
	}

	motivation := clamp(len([]rune(sub.Narrative))/4, 0, narrativeComponentCap)
	delta := deltaPerResource*(len(state.Resources)-prevResources) +
		deltaPerSuccess*(len(state.SuccessCriteria)-prevSuccess)
	if !poseWasSet && state.PlayerPose != nil {
		delta += deltaPoseFirst
	}
	motivation += clamp(delta, 0, deltaComponentCap)

	newlyCovered := 0
	for field, ok := range state.Coverage {
		if ok && !prevCoverage[field] {
			newlyCovered++
		}
	}
	motivation += clamp(perCoveredField*newlyCovered, 0, responsiveComponentCap)
	motivation = clamp(motivation, 0, motivationCeiling)
	if patch.MotivationScore != nil && *patch.MotivationScore > motivation {
		motivation = clamp(*patch.MotivationScore, 0, motivationCeiling)
	}
	if motivation < prevMotivation {
		motivation = prevMotivation
	}
	state.MotivationScore = motivation
	state.BuildCapability = clamp(state.MotivationScore+state.LogicScore, 0, capabilityCeiling)

	blocking := model.AppendUnique(nil, dropPlaceholders(patch.Blocking)...)
	for _, field := range model.CoverageFields {
		if !state.Coverage[field] {
			blocking = model.AppendUnique(blocking, missingMessages[field])
		}
	}
	if state.LogicScore < 50 {
		blocking = model.AppendUnique(blocking, "logic score < 50")
	}
	state.Blocking = blocking
	state.ReadyForBuild = state.BuildCapability >= m.readyCapability && len(state.Blocking) == 0
}

func coverage(state *model.StoryState) map[string]bool {
	return map[string]bool{
		model.FieldLogicOutline:     len(state.LogicOutline) > 0,
		model.FieldWorldConstraints: len(state.WorldConstraints) > 0,
		model.FieldResourceLedger:   len(state.Resources) > 0,
		model.FieldSuccessCriteria:  len(state.SuccessCriteria) > 0,
		model.FieldRiskRegister:     len(state.RiskRegister) > 0,
	}
}

// UpdatePose records a pose push without running the merge pipeline.
func (m *Manager) UpdatePose(player, scenario string, pose model.PlayerPose) (model.StoryState, error) {
	return m.repo.Update(player, scenario, func(state *model.StoryState) {
		p := pose
		state.PlayerPose = &p
		state.LocationHint = fmt.Sprintf("%s %.0f %.0f %.0f", p.World, p.X, p.Y, p.Z)
	})
}

// SyncPlanStatus records post-execution feedback for the latest plan.
func (m *Manager) SyncPlanStatus(player, scenario, planID, status string) (model.StoryState, error) {
	return m.repo.Update(player, scenario, func(state *model.StoryState) {
		now := time.Now().UTC()
		state.LastPlanID = planID
		state.LastPlanStatus = status
		state.LastPlanSyncedAt = &now
	})
}

func (m *Manager) Load(player, scenario string) (model.StoryState, error) {
	return m.repo.Load(player, scenario)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
