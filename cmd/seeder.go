package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/hospital-auth/internal/auth"
	"github.com/frahmantamala/hospital-auth/internal/user"
	userPostgres "github.com/frahmantamala/hospital-auth/internal/user/postgres"
	"github.com/spf13/cobra"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
	seedAdminName     string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the role catalogue and an administrator account",
	Long:  `Seed the hospital roles and, when credentials are given, an administrator account. Safe to run repeatedly.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		gdb, sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		repo := userPostgres.NewUserRepository(gdb)

		var adminRoleID int64
		for _, spec := range user.DefaultRoles {
			role, err := repo.EnsureRole(ctx, spec)
			if err != nil {
				log.Fatalf("failed to seed role %s: %v", spec.Name, err)
			}
			if role.Name == user.RoleAdmin {
				adminRoleID = role.ID
			}
			fmt.Println("Seeded role:", role.Name)
		}

		if seedAdminEmail == "" {
			fmt.Println("No --admin-email given; skipping administrator account")
			return
		}
		if len(seedAdminPassword) < 8 {
			log.Fatal("--admin-password must be at least 8 characters")
		}

		existing, err := repo.FindUserByEmail(ctx, seedAdminEmail)
		if err != nil {
			log.Fatalf("failed to look up admin: %v", err)
		}
		if existing != nil {
			if err := repo.AssignRoles(ctx, existing.ID, []int64{adminRoleID}); err != nil {
				log.Fatalf("failed to grant admin role: %v", err)
			}
			fmt.Println("admin user already exists; ensured admin role:", existing.Email)
			return
		}

		credential, err := auth.NewHasher(cfg.Security).Hash(seedAdminPassword)
		if err != nil {
			log.Fatalf("failed to hash password: %v", err)
		}

		id, err := repo.CreateUser(ctx, user.NewUser{
			Email:      seedAdminEmail,
			Credential: credential,
			FullName:   seedAdminName,
			Status:     user.StatusActive,
			RoleIDs:    []int64{adminRoleID},
		})
		if err != nil {
			log.Fatalf("failed to create admin user: %v", err)
		}
		fmt.Printf("Seeded admin user %s (id %d)\n", user.NormalizeEmail(seedAdminEmail), id)
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "", "email of the administrator account to create")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "", "password of the administrator account")
	seedCmd.Flags().StringVar(&seedAdminName, "admin-name", "System Administrator", "full name of the administrator account")
}
