package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/XhsCrawler/internal/accounts"
	"github.com/RecoveryAshes/XhsCrawler/internal/core"
	"github.com/RecoveryAshes/XhsCrawler/internal/models"
	"github.com/RecoveryAshes/XhsCrawler/internal/utils"
)

// 账号参数
var (
	accountName   string
	accountCookie string
	accountStatus string
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "管理轮换账号",
}

var accountAddCmd = &cobra.Command{
	Use:   "add",
	Short: "添加账号",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.NewHeaderValidator().ValidateCookie(accountCookie); err != nil {
			return err
		}
		account, err := models.NewAccount(accountName, accountCookie)
		if err != nil {
			return err
		}
		return withStore(cmd, func(repo accounts.Repository) error {
			if err := repo.Create(cmd.Context(), account); err != nil {
				return fmt.Errorf("保存账号失败: %w", err)
			}
			utils.Infof("✅ 账号已添加: %s (%s)", account.Name, account.ID)
			return nil
		})
	},
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "列出账号",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(repo accounts.Repository) error {
			ctx := cmd.Context()
			var (
				list []models.Account
				err  error
			)
			if accountStatus != "" {
				status, perr := models.ParseAccountStatus(accountStatus)
				if perr != nil {
					return perr
				}
				list, err = repo.ListByStatus(ctx, status)
			} else {
				list, err = repo.List(ctx)
			}
			if err != nil {
				return fmt.Errorf("读取账号失败: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\t名称\t状态\t使用次数\t最后使用\tCookie")
			for _, a := range list {
				last := "-"
				if a.LastUsedAt != nil {
					last = a.LastUsedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					a.ID, a.Name, a.Status, a.UsageCount, last, utils.MaskCookie(a.Cookie))
			}
			return w.Flush()
		})
	},
}

var accountDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "删除账号",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd, func(repo accounts.Repository) error {
			if err := repo.Delete(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("删除账号失败: %w", err)
			}
			utils.Infof("账号已删除: %s", args[0])
			return nil
		})
	},
}

var accountStatusCmd = &cobra.Command{
	Use:   "status <id> <active|inactive|banned>",
	Short: "修改账号状态",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := models.ParseAccountStatus(args[1])
		if err != nil {
			return err
		}
		return withStore(cmd, func(repo accounts.Repository) error {
			if err := repo.UpdateStatus(cmd.Context(), args[0], status); err != nil {
				return fmt.Errorf("修改状态失败: %w", err)
			}
			utils.Infof("账号 %s 状态已更新为 %s", args[0], status)
			return nil
		})
	},
}

func init() {
	accountAddCmd.Flags().StringVar(&accountName, "name", "", "账号名称 (必需)")
	accountAddCmd.Flags().StringVar(&accountCookie, "cookie", "", "完整Cookie字符串 (必需)")
	_ = accountAddCmd.MarkFlagRequired("name")
	_ = accountAddCmd.MarkFlagRequired("cookie")

	accountListCmd.Flags().StringVar(&accountStatus, "status", "", "按状态筛选 (active|inactive|banned)")

	accountCmd.AddCommand(accountAddCmd, accountListCmd, accountDeleteCmd, accountStatusCmd)
}

// withStore 打开账号存储执行操作后关闭
func withStore(cmd *cobra.Command, fn func(accounts.Repository) error) error {
	if appConfig.Store.Driver == "memory" {
		utils.Warn("账号存储为 memory, 修改不会持久化")
	}
	repo, err := core.OpenStore(cmd.Context(), appConfig.Store)
	if err != nil {
		return fmt.Errorf("打开账号存储失败: %w", err)
	}
	defer repo.Close()
	return fn(repo)
}
