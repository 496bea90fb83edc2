package http

import (
	"bufio"
	"encoding/json"
	"strconv"
	"xiaozhengshu/base"
	errorc "xiaozhengshu/pkg/core/err"
	"xiaozhengshu/pkg/core/logger"
	"xiaozhengshu/pkg/core/model/common"
	"xiaozhengshu/pkg/core/result"
	"xiaozhengshu/system/renewal/internal/app"
	"xiaozhengshu/system/renewal/internal/model"
	"xiaozhengshu/system/renewal/internal/service"
	"xiaozhengshu/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

// RenewalController 证书续期后台管理控制器
type RenewalController struct {
	app *app.App
	log *logger.Log
	err *errorc.ErrorBuilder
}

// NewRenewalController 创建证书续期控制器实例
func NewRenewalController(app *app.App) *RenewalController {
	return &RenewalController{
		app: app,
		log: logger.GetLogger().WithEntryName("RenewalController"),
		err: errorc.NewErrorBuilder("RenewalController"),
	}
}

// RegisterRoutes 注册证书续期相关路由
func (c *RenewalController) RegisterRoutes(admin fiber.Router) {
	renewal := admin.Group("/renewal")

	// 连接管理
	connRouter := renewal.Group("/connections")
	connRouter.Post("/", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:create"), c.CreateConnection)
	connRouter.Get("/", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.ListConnections)
	connRouter.Get("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.GetConnection)
	connRouter.Put("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:update"), c.UpdateConnection)
	connRouter.Delete("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:delete"), c.DeleteConnection)

	// 续期操作
	connRouter.Post("/:id/renew", base.AdminAuth.RequireAdminAuth("admin:renewal:op:start"), c.StartRenewal)
	connRouter.Get("/:id/operation", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.GetConnectionOperation)
	connRouter.Get("/:id/history", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.ListHistory)

	// 证书材料
	connRouter.Get("/:id/bundle", base.AdminAuth.RequireAdminAuth("admin:renewal:bundle:read"), c.GetBundle)
	connRouter.Get("/:id/bundle/:file", base.AdminAuth.RequireAdminAuth("admin:renewal:bundle:read"), c.DownloadBundleFile)

	// 连通性测试
	connRouter.Post("/:id/test-ssh", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.TestSSH)
	renewal.Post("/probe/tcp", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.ProbeTCP)
	renewal.Post("/probe/tls", base.AdminAuth.RequireAdminAuth("admin:renewal:conn:read"), c.ProbeTLS)

	// 操作管理（管理端视角）
	opRouter := renewal.Group("/operations")
	opRouter.Get("/", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.ListOperations)
	opRouter.Get("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.GetOperation)
	opRouter.Post("/:id/cancel", base.AdminAuth.RequireAdminAuth("admin:renewal:op:cancel"), c.CancelOperation)

	// 调度器状态
	renewal.Get("/scheduler/status", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.GetSchedulerStatus)

	// DNS 凭证管理
	credRouter := renewal.Group("/dns-credentials")
	credRouter.Post("/", base.AdminAuth.RequireAdminAuth("admin:renewal:dns:create"), c.CreateDnsCredential)
	credRouter.Get("/", base.AdminAuth.RequireAdminAuth("admin:renewal:dns:read"), c.ListDnsCredentials)
	credRouter.Put("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:dns:update"), c.UpdateDnsCredential)
	credRouter.Delete("/:id", base.AdminAuth.RequireAdminAuth("admin:renewal:dns:delete"), c.DeleteDnsCredential)
	credRouter.Post("/:id/test", base.AdminAuth.RequireAdminAuth("admin:renewal:dns:read"), c.TestDnsCredential)

	// 进度推送（SSE）
	renewal.Get("/events", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.StreamAdminEvents)
	connRouter.Get("/:id/events", base.AdminAuth.RequireAdminAuth("admin:renewal:op:read"), c.StreamConnectionEvents)
}

// ===== 连接管理 =====

type ConnectionRequest struct {
	Name            string                `json:"name" validate:"required"`
	TargetType      model.TargetType      `json:"target_type" validate:"required,oneof=voice_infra identity_engine ssh"`
	Hostname        string                `json:"hostname" validate:"required"`
	Domain          string                `json:"domain" validate:"required"`
	AltNames        string                `json:"alt_names"`
	AcmeEnv         model.AcmeEnvironment `json:"acme_env" validate:"omitempty,oneof=staging production"`
	AcmeEmail       string                `json:"acme_email" validate:"required,email"`
	DnsProvider     model.DnsProvider     `json:"dns_provider" validate:"required,oneof=cloudflare route53 azuredns gcloud digitalocean custom"`
	DnsCredentialID int64                 `json:"dns_credential_id"`
	DeployConfig    string                `json:"deploy_config" validate:"required"`
	AutoRenew       int                   `json:"auto_renew"`
	IsEnabled       int                   `json:"is_enabled"`
	RenewBeforeDays int                   `json:"renew_before_days"`
	DemoteToManual  int                   `json:"demote_to_manual"`
}

func (r *ConnectionRequest) toModel() *model.Connection {
	return &model.Connection{
		Name:            r.Name,
		TargetType:      r.TargetType,
		Hostname:        r.Hostname,
		Domain:          r.Domain,
		AltNames:        r.AltNames,
		AcmeEnv:         r.AcmeEnv,
		AcmeEmail:       r.AcmeEmail,
		DnsProvider:     r.DnsProvider,
		DnsCredentialID: r.DnsCredentialID,
		DeployConfig:    r.DeployConfig,
		AutoRenew:       r.AutoRenew,
		IsEnabled:       r.IsEnabled,
		RenewBeforeDays: r.RenewBeforeDays,
		DemoteToManual:  r.DemoteToManual,
	}
}

func (c *RenewalController) CreateConnection(ctx *fiber.Ctx) error {
	var req ConnectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}
	if _, err := utils.Validate(req); err != nil {
		return c.err.New("参数验证失败", err).ValidWithCtx()
	}

	conn := req.toModel()
	err := c.app.CreateConnection(ctx.UserContext(), conn)
	return result.Once(ctx, conn, err)
}

func (c *RenewalController) ListConnections(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.Query("page_size", "20"))

	connections, total, err := c.app.ListConnections(ctx.UserContext(), page, pageSize)
	if err != nil {
		return err
	}
	return result.OK(ctx, fiber.Map{"list": connections, "total": total})
}

func (c *RenewalController) GetConnection(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	conn, err := c.app.GetConnection(ctx.UserContext(), id)
	return result.Once(ctx, conn, err)
}

func (c *RenewalController) UpdateConnection(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}

	var req ConnectionRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}
	if _, err := utils.Validate(req); err != nil {
		return c.err.New("参数验证失败", err).ValidWithCtx()
	}

	updateErr := c.app.UpdateConnection(ctx.UserContext(), id, req.toModel())
	return result.Once(ctx, nil, updateErr)
}

func (c *RenewalController) DeleteConnection(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return result.Once(ctx, nil, c.app.DeleteConnection(ctx.UserContext(), id))
}

// ===== 续期操作 =====

func (c *RenewalController) StartRenewal(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	op, err := c.app.StartRenewal(ctx.UserContext(), id, model.CreatedByUser)
	return result.Once(ctx, op, err)
}

func (c *RenewalController) GetConnectionOperation(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return result.OK(ctx, c.app.GetConnectionOperation(id))
}

func (c *RenewalController) ListHistory(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.Query("page_size", "20"))

	histories, total, err := c.app.ListRenewalHistory(ctx.UserContext(), id, page, pageSize)
	if err != nil {
		return err
	}
	return result.OK(ctx, fiber.Map{"list": histories, "total": total})
}

func (c *RenewalController) ListOperations(ctx *fiber.Ctx) error {
	return result.OK(ctx, c.app.ListOperations())
}

func (c *RenewalController) GetOperation(ctx *fiber.Ctx) error {
	op, err := c.app.GetOperation(ctx.Params("id"))
	return result.Once(ctx, op, err)
}

func (c *RenewalController) CancelOperation(ctx *fiber.Ctx) error {
	return result.Once(ctx, nil, c.app.CancelOperation(ctx.Params("id")))
}

func (c *RenewalController) GetSchedulerStatus(ctx *fiber.Ctx) error {
	status, err := c.app.GetSchedulerStatus(ctx.UserContext())
	return result.Once(ctx, status, err)
}

// ===== 证书材料 =====

func (c *RenewalController) GetBundle(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	info, err := c.app.GetBundleInfo(id, c.queryEnv(ctx))
	return result.Once(ctx, info, err)
}

func (c *RenewalController) DownloadBundleFile(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	path, err := c.app.GetBundleFilePath(id, c.queryEnv(ctx), ctx.Params("file"))
	if err != nil {
		return err
	}
	return ctx.Download(path)
}

// ===== 连通性测试 =====

type ProbeRequest struct {
	Host string `json:"host" validate:"required"`
	Port int    `json:"port" validate:"required,min=1,max=65535"`
}

func (c *RenewalController) ProbeTCP(ctx *fiber.Ctx) error {
	var req ProbeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}
	if _, err := utils.Validate(req); err != nil {
		return c.err.New("参数验证失败", err).ValidWithCtx()
	}
	return result.OK(ctx, c.app.TestTCPConnectivity(req.Host, req.Port))
}

func (c *RenewalController) ProbeTLS(ctx *fiber.Ctx) error {
	var req ProbeRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}
	if _, err := utils.Validate(req); err != nil {
		return c.err.New("参数验证失败", err).ValidWithCtx()
	}
	return result.OK(ctx, c.app.TestTLSConnectivity(req.Host, req.Port))
}

func (c *RenewalController) TestSSH(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return result.Once(ctx, nil, c.app.TestSSHConnectivity(ctx.UserContext(), id))
}

// ===== DNS 凭证管理 =====

type DnsCredentialRequest struct {
	Name        string            `json:"name" validate:"required"`
	Provider    model.DnsProvider `json:"provider" validate:"required,oneof=cloudflare route53 azuredns gcloud digitalocean"`
	AccessKey   string            `json:"access_key"`
	SecretKey   string            `json:"secret_key"`
	ExtraConfig string            `json:"extra_config"`
	Status      int               `json:"status"`
}

func (r *DnsCredentialRequest) toModel() (*model.DnsCredential, error) {
	credential := &model.DnsCredential{
		Name:      r.Name,
		Provider:  r.Provider,
		AccessKey: r.AccessKey,
		SecretKey: r.SecretKey,
		Status:    r.Status,
	}
	if r.ExtraConfig != "" {
		var extra common.JSON
		if err := json.Unmarshal([]byte(r.ExtraConfig), &extra); err != nil {
			return nil, err
		}
		credential.ExtraConfig = &extra
	}
	return credential, nil
}

func (c *RenewalController) CreateDnsCredential(ctx *fiber.Ctx) error {
	var req DnsCredentialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}
	if _, err := utils.Validate(req); err != nil {
		return c.err.New("参数验证失败", err).ValidWithCtx()
	}

	credential, err := req.toModel()
	if err != nil {
		return c.err.New("解析 extra_config 失败", err).ValidWithCtx()
	}
	if credential.Status == 0 {
		credential.Status = 1
	}

	createErr := c.app.CreateDnsCredential(ctx.UserContext(), credential)
	return result.Once(ctx, credential, createErr)
}

func (c *RenewalController) ListDnsCredentials(ctx *fiber.Ctx) error {
	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	pageSize, _ := strconv.Atoi(ctx.Query("page_size", "20"))

	credentials, total, err := c.app.ListDnsCredentials(ctx.UserContext(), page, pageSize)
	if err != nil {
		return err
	}
	return result.OK(ctx, fiber.Map{"list": credentials, "total": total})
}

func (c *RenewalController) UpdateDnsCredential(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}

	var req DnsCredentialRequest
	if err := ctx.BodyParser(&req); err != nil {
		return c.err.New("解析请求参数失败", err).ValidWithCtx()
	}

	credential, convErr := req.toModel()
	if convErr != nil {
		return c.err.New("解析 extra_config 失败", convErr).ValidWithCtx()
	}

	return result.Once(ctx, nil, c.app.UpdateDnsCredential(ctx.UserContext(), id, credential))
}

func (c *RenewalController) DeleteDnsCredential(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return result.Once(ctx, nil, c.app.DeleteDnsCredential(ctx.UserContext(), id))
}

func (c *RenewalController) TestDnsCredential(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return result.Once(ctx, nil, c.app.TestDnsCredential(ctx.UserContext(), id))
}

// ===== 进度推送 =====

// StreamAdminEvents 管理端全量进度推送（SSE）
func (c *RenewalController) StreamAdminEvents(ctx *fiber.Ctx) error {
	return c.streamEvents(ctx, service.TopicAdmin)
}

// StreamConnectionEvents 单连接进度推送（SSE）
func (c *RenewalController) StreamConnectionEvents(ctx *fiber.Ctx) error {
	id, err := c.paramID(ctx)
	if err != nil {
		return err
	}
	return c.streamEvents(ctx, service.ConnectionTopic(id))
}

// streamEvents 订阅主题并以 SSE 格式持续输出进度事件
// 新订阅者先收到各操作的最新快照，写入失败即视为断连退订
func (c *RenewalController) streamEvents(ctx *fiber.Ctx, topic string) error {
	ctx.Set("Content-Type", "text/event-stream")
	ctx.Set("Cache-Control", "no-cache")
	ctx.Set("Connection", "keep-alive")

	events, unsubscribe := c.app.Broadcaster.Subscribe(topic)

	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer unsubscribe()

		for event := range events {
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if _, err := w.WriteString("data: " + string(data) + "\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}

// queryEnv 解析 env 查询参数，默认 production
func (c *RenewalController) queryEnv(ctx *fiber.Ctx) model.AcmeEnvironment {
	if ctx.Query("env") == string(model.AcmeEnvStaging) {
		return model.AcmeEnvStaging
	}
	return model.AcmeEnvProduction
}

// paramID 解析路径中的连接/操作数字 ID
func (c *RenewalController) paramID(ctx *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(ctx.Params("id"), 10, 64)
	if err != nil {
		return 0, c.err.New("无效的 ID 参数", err).ValidWithCtx()
	}
	return id, nil
}
