package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"wasmScope/internal/correlate"
	"wasmScope/internal/metrics"
	"wasmScope/internal/model"
	"wasmScope/internal/schema"
	"wasmScope/internal/store"
	"wasmScope/internal/wasm"
)

// DefaultMaxParentDepth bounds how many ancestor DAOs are created while
// linking a new DAO to its admin.
const DefaultMaxParentDepth = 8

const (
	actionInstantiateWithSelfAdmin = "instantiate_contract_with_self_admin"
	actionUpdateConfig             = "update_config"
	actionUpdateAdmin              = "update_admin"
)

var (
	// v1 and v2 instantiate messages carry name and description either at
	// the top level or under config.
	daoInfoSchema       = schema.Keys{"name", "description"}
	daoNestedInfoSchema = schema.Shape{Fields: map[string]schema.Schema{"config": daoInfoSchema}}
	// dump_state of cw-core v1 and v2 both contain config.
	dumpStateSchema = schema.Shape{Fields: map[string]schema.Schema{"config": daoInfoSchema}}
)

type daoInfo struct {
	Name        string
	Description string
	ImageURL    string
	DaoURI      string
	Admin       string
}

// parseDaoInfo reads a DAO config from an instantiate message or a dump_state
// response.
func parseDaoInfo(obj map[string]any) (daoInfo, bool) {
	var config map[string]any
	switch {
	case schema.Matches(obj, daoInfoSchema):
		config = obj
	case schema.Matches(obj, daoNestedInfoSchema):
		config = obj["config"].(map[string]any)
	default:
		return daoInfo{}, false
	}

	info := configInfo(config)
	info.Admin, _ = stringField(obj["admin"])
	return info, true
}

func configInfo(config map[string]any) daoInfo {
	var info daoInfo
	info.Name, _ = config["name"].(string)
	info.Description, _ = config["description"].(string)
	info.ImageURL, _ = config["image_url"].(string)
	info.DaoURI, _ = config["dao_uri"].(string)
	return info
}

// Daos maintains the DAO registry: instantiation, config updates and the
// parent relation set by admin changes.
type Daos struct {
	env            Env
	codeIDs        map[uint64]bool
	contracts      correlate.CodeIDResolver
	maxParentDepth int
}

// NewDaos builds the DAO registry variant. A non-empty codeIDs list limits
// tracking to DAO core contracts of those code ids.
func NewDaos(env Env, codeIDs []uint64, contracts correlate.CodeIDResolver) *Daos {
	return &Daos{
		env:            env,
		codeIDs:        codeIDSet(codeIDs),
		contracts:      contracts,
		maxParentDepth: DefaultMaxParentDepth,
	}
}

func (h *Daos) Name() string { return NameDaos }

func (h *Daos) CanHandle(msg model.Message) bool {
	if isInstantiate(msg) {
		return len(h.codeIDs) == 0 || h.codeIDs[msg.CodeID]
	}
	action, _, ok := executeAction(msg)
	if !ok {
		return false
	}
	switch action {
	case actionInstantiateWithSelfAdmin, actionUpdateConfig, actionUpdateAdmin:
		return true
	}
	return false
}

func (h *Daos) Handle(ctx context.Context, msg model.Message) error {
	logger := h.env.logger().With(
		zap.String("indexer", NameDaos),
		zap.String("tx", msg.TxHash),
		zap.Uint64("height", msg.BlockHeight),
	)

	if isInstantiate(msg) {
		payload, err := msg.Payload()
		if err != nil {
			logger.Warn("skip instantiate with undecodable payload", zap.Error(err))
			return nil
		}
		return h.instantiate(ctx, msg, payload, logger)
	}

	action, inner, _ := executeAction(msg)
	switch action {
	case actionInstantiateWithSelfAdmin:
		return h.instantiateFromFactory(ctx, msg, inner, logger)
	case actionUpdateConfig:
		return h.updateConfig(ctx, msg, inner, logger)
	case actionUpdateAdmin:
		return h.updateAdmin(ctx, msg, logger)
	}
	return nil
}

func (h *Daos) instantiate(ctx context.Context, msg model.Message, payload map[string]any, logger *zap.Logger) error {
	core, err := wasm.MessageAttribute(msg, wasm.EventTypeInstantiate, wasm.AttrContractAddress)
	if err != nil || core == "" {
		logger.Error("core address not found in instantiate events", zap.Error(err))
		return nil
	}

	info, ok := parseDaoInfo(payload)
	if !ok {
		logger.Warn("instantiate message is not a DAO instantiate message", zap.String("core", core))
		return nil
	}
	h.rememberCodeID(core, msg.CodeID)
	return h.createDao(ctx, msg, core, info, logger)
}

func (h *Daos) instantiateFromFactory(ctx context.Context, msg model.Message, inner map[string]any, logger *zap.Logger) error {
	if inner == nil {
		return nil
	}
	codeID, hasCodeID := uintField(inner["code_id"])
	if hasCodeID && len(h.codeIDs) > 0 && !h.codeIDs[codeID] {
		return nil
	}

	core, err := wasm.MessageAttribute(msg, wasm.EventTypeInstantiate, wasm.AttrContractAddress)
	if err != nil || core == "" {
		logger.Error("core address not found in factory events", zap.String("factory", msg.Contract), zap.Error(err))
		return nil
	}

	encoded, _ := inner["instantiate_msg"].(string)
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		logger.Error("factory instantiate_msg is not base64", zap.String("core", core), zap.Error(err))
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(decoded, &payload); err != nil {
		logger.Error("factory instantiate_msg is not JSON", zap.String("core", core), zap.Error(err))
		return nil
	}
	info, ok := parseDaoInfo(payload)
	if !ok {
		logger.Error("factory instantiate_msg is not a DAO instantiate message", zap.String("core", core))
		return nil
	}
	if hasCodeID {
		h.rememberCodeID(core, codeID)
	}
	return h.createDao(ctx, msg, core, info, logger)
}

func (h *Daos) createDao(ctx context.Context, msg model.Message, core string, info daoInfo, logger *zap.Logger) error {
	blockTime := msg.BlockTime.UTC()

	dao, ok, err := store.Load[model.Dao](ctx, h.env.Store, core)
	if err != nil {
		return err
	}
	if ok {
		// Seen before its instantiation, e.g. created as a parent.
		dao.Created = &blockTime
	} else {
		dao = model.Dao{
			ID:                core,
			Name:              info.Name,
			Description:       info.Description,
			ImageURL:          info.ImageURL,
			DaoURI:            info.DaoURI,
			Created:           &blockTime,
			InfoUpdatedAt:     blockTime,
			InfoUpdatedHeight: msg.BlockHeight,
		}
		if info.Admin != "" && info.Admin != core {
			_, found, err := h.getOrCreateDao(ctx, info.Admin, 1, map[string]bool{core: true}, logger)
			if err != nil {
				return err
			}
			if found {
				dao.ParentDaoID = info.Admin
				dao.ParentDaoUpdatedAt = &blockTime
				dao.ParentDaoUpdatedHeight = msg.BlockHeight
			}
		}
	}

	if err := store.Save(ctx, h.env.Store, dao); err != nil {
		return fmt.Errorf("save dao %s: %w", core, err)
	}
	logger.Info("dao instantiated", zap.String("core", core), zap.String("name", dao.Name), zap.String("parent", dao.ParentDaoID))
	return nil
}

func (h *Daos) updateConfig(ctx context.Context, msg model.Message, inner map[string]any, logger *zap.Logger) error {
	if !h.trackedCore(ctx, msg.Contract, logger) {
		return nil
	}
	dao, ok, err := h.getOrCreateDao(ctx, msg.Contract, 0, map[string]bool{}, logger)
	if err != nil {
		return err
	}
	if !ok {
		logger.Error("dao unavailable during update_config", zap.String("core", msg.Contract))
		return nil
	}

	config, _ := inner["config"].(map[string]any)
	if config == nil {
		logger.Error("empty config in update_config", zap.String("core", msg.Contract))
		return nil
	}

	if dao.InfoUpdatedHeight >= msg.BlockHeight {
		logger.Warn("dao info already newer than update_config", zap.String("core", msg.Contract), zap.Uint64("info_height", dao.InfoUpdatedHeight))
		return nil
	}

	info := configInfo(config)
	dao.Name = info.Name
	dao.Description = info.Description
	dao.ImageURL = info.ImageURL
	dao.DaoURI = info.DaoURI
	dao.InfoUpdatedAt = msg.BlockTime.UTC()
	dao.InfoUpdatedHeight = msg.BlockHeight
	if err := store.Save(ctx, h.env.Store, dao); err != nil {
		return fmt.Errorf("save dao %s: %w", dao.ID, err)
	}
	logger.Info("dao config updated", zap.String("core", dao.ID))
	return nil
}

func (h *Daos) updateAdmin(ctx context.Context, msg model.Message, logger *zap.Logger) error {
	if !h.trackedCore(ctx, msg.Contract, logger) {
		return nil
	}
	dao, ok, err := h.getOrCreateDao(ctx, msg.Contract, 0, map[string]bool{}, logger)
	if err != nil {
		return err
	}
	if !ok {
		logger.Error("dao unavailable during update_admin", zap.String("core", msg.Contract))
		return nil
	}
	if dao.ParentDaoUpdatedHeight != 0 && dao.ParentDaoUpdatedHeight >= msg.BlockHeight {
		logger.Warn("parent dao already newer than update_admin", zap.String("core", dao.ID))
		return nil
	}

	newAdmin := newAdminOf(msg)
	if newAdmin == "" {
		logger.Error("new_admin not found in update_admin events", zap.String("core", dao.ID))
		return nil
	}

	_, found, err := h.getOrCreateDao(ctx, newAdmin, 1, map[string]bool{dao.ID: true}, logger)
	if err != nil {
		return err
	}
	if !found {
		logger.Error("new admin is not a dao", zap.String("core", dao.ID), zap.String("admin", newAdmin))
		return nil
	}

	blockTime := msg.BlockTime.UTC()
	dao.ParentDaoID = newAdmin
	dao.ParentDaoUpdatedAt = &blockTime
	dao.ParentDaoUpdatedHeight = msg.BlockHeight
	if err := store.Save(ctx, h.env.Store, dao); err != nil {
		return fmt.Errorf("save dao %s: %w", dao.ID, err)
	}
	logger.Info("parent dao updated", zap.String("core", dao.ID), zap.String("parent", newAdmin))
	return nil
}

func newAdminOf(msg model.Message) string {
	if value, err := wasm.MessageAttribute(msg, wasm.EventTypeWasm, "new_admin"); err == nil && value != "" {
		return value
	}
	if event, ok := wasm.FindMatchingEvent(msg.Events, []wasm.Matcher{wasm.MatchKey("new_admin")}); ok {
		value, _ := event.First("new_admin")
		return value
	}
	return ""
}

// rememberCodeID primes the code id cache with a freshly instantiated core.
func (h *Daos) rememberCodeID(core string, codeID uint64) {
	if setter, ok := h.contracts.(interface{ Set(string, uint64) }); ok && codeID != 0 {
		setter.Set(core, codeID)
	}
}

// trackedCore reports whether execute messages sent to contract should be
// indexed. Without configured code ids every contract is tracked.
func (h *Daos) trackedCore(ctx context.Context, contract string, logger *zap.Logger) bool {
	if len(h.codeIDs) == 0 || h.contracts == nil {
		return true
	}
	codeID, err := h.contracts.CodeID(ctx, contract)
	if err != nil {
		logger.Warn("cannot resolve code id", zap.String("contract", contract), zap.Error(err))
		return false
	}
	return h.codeIDs[codeID]
}

// getOrCreateDao loads the DAO at address or, if unknown, creates it from its
// dumped chain state. Addresses whose state does not look like a DAO core are
// reported as not found. Parent creation stops at maxParentDepth and on
// cycles.
func (h *Daos) getOrCreateDao(ctx context.Context, address string, depth int, visited map[string]bool, logger *zap.Logger) (model.Dao, bool, error) {
	dao, ok, err := store.Load[model.Dao](ctx, h.env.Store, address)
	if err != nil || ok {
		return dao, ok, err
	}
	if depth > h.maxParentDepth || visited[address] {
		logger.Warn("stop creating parent daos", zap.String("address", address), zap.Int("depth", depth))
		return model.Dao{}, false, nil
	}
	visited[address] = true

	raw, err := h.env.Chain.QueryContractSmart(ctx, address, map[string]any{"dump_state": map[string]any{}})
	metrics.RecordBootstrapQuery("dump_state", err)
	if err != nil {
		logger.Error("dump_state query failed", zap.String("address", address), zap.Error(err))
		return model.Dao{}, false, nil
	}
	var dumped map[string]any
	if err := json.Unmarshal(raw, &dumped); err != nil || !schema.Matches(dumped, dumpStateSchema) {
		logger.Error("dumped state does not look like a dao core", zap.String("address", address), zap.ByteString("state", raw))
		return model.Dao{}, false, nil
	}
	header, err := h.env.Chain.GetBlock(ctx, 0)
	if err != nil {
		logger.Error("latest block unavailable", zap.Error(err))
		return model.Dao{}, false, nil
	}

	info, _ := parseDaoInfo(dumped)
	headerTime := header.Time.UTC()
	dao = model.Dao{
		ID:                address,
		Name:              info.Name,
		Description:       info.Description,
		ImageURL:          info.ImageURL,
		DaoURI:            info.DaoURI,
		Created:           parseCreatedTimestamp(dumped["created_timestamp"]),
		InfoUpdatedAt:     headerTime,
		InfoUpdatedHeight: header.Height,
	}
	if info.Admin != "" && info.Admin != address {
		_, found, err := h.getOrCreateDao(ctx, info.Admin, depth+1, visited, logger)
		if err != nil {
			return model.Dao{}, false, err
		}
		if found {
			dao.ParentDaoID = info.Admin
			dao.ParentDaoUpdatedAt = &headerTime
			dao.ParentDaoUpdatedHeight = header.Height
		}
	}

	if err := store.Save(ctx, h.env.Store, dao); err != nil {
		return model.Dao{}, false, fmt.Errorf("save dao %s: %w", address, err)
	}
	logger.Info("dao created from chain state", zap.String("core", address), zap.String("parent", dao.ParentDaoID))
	return dao, true, nil
}

// parseCreatedTimestamp reads a cw-core v2 created_timestamp, given in
// nanoseconds or as RFC 3339 text.
func parseCreatedTimestamp(value any) *time.Time {
	text, ok := stringField(value)
	if !ok {
		return nil
	}
	if ns, err := strconv.ParseInt(text, 10, 64); err == nil {
		t := time.Unix(0, ns).UTC()
		return &t
	}
	if t, err := time.Parse(time.RFC3339Nano, text); err == nil {
		t = t.UTC()
		return &t
	}
	return nil
}
